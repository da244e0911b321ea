package api

import (
	"bytes"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/nugget/axis/internal/agent"
	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/validate"
)

// assistantResponse adds an HTML rendering of the reply for clients
// that display it directly. Raw HTML in the model's text is escaped.
type assistantResponse struct {
	*agent.Result
	ReplyHTML string `json:"replyHtml"`
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request, user *store.User) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := validate.AssistantMessage(req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Agent.Run(r.Context(), user.ID, msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, assistantResponse{
		Result:    res,
		ReplyHTML: s.renderMarkdown(res.Reply),
	})
}

// renderMarkdown converts a reply to HTML, falling back to the empty
// string when the converter fails.
func (s *Server) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		s.logger.Debug("markdown render failed", "error", err)
		return ""
	}
	return buf.String()
}
