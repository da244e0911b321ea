package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/reschedule"
	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/tools"
	"github.com/nugget/axis/internal/usage"
	"github.com/nugget/axis/internal/validate"
)

// toolResponse is a successful tool result plus the saved document.
type toolResponse struct {
	*tools.Result
	Data *planner.Document `json:"data"`
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request, user *store.User) {
	doc, err := s.deps.Store.LoadDocument(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, doc)
}

// handlePutData replaces the whole document. Missing collections come
// back as empty ones.
func (s *Server) handlePutData(w http.ResponseWriter, r *http.Request, user *store.User) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, badRequest("request body too large or unreadable"))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		s.writeError(w, r, badRequest("request body is required"))
		return
	}
	doc, err := planner.Decode(body)
	if err != nil {
		s.writeError(w, r, badRequest("invalid document: %v", err))
		return
	}
	if err := validate.Document(doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.SaveDocument(detached(r), user.ID, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, doc)
}

// handlePutProfile replaces the profile object. JSON null clears it.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request, user *store.User) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	var profile planner.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		s.writeError(w, r, badRequest("profile must be a JSON object"))
		return
	}

	s.updateDocument(w, r, user, func(doc *planner.Document) error {
		doc.Profile = profile
		return nil
	})
}

func (s *Server) handlePutFixedBlocks(w http.ResponseWriter, r *http.Request, user *store.User) {
	var blocks []planner.FixedBlock
	if err := decodeJSON(w, r, &blocks, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validate.FixedBlocks(blocks); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.updateDocument(w, r, user, func(doc *planner.Document) error {
		doc.FixedBlocks = blocks
		return nil
	})
}

// updateDocument loads, applies fn and saves, responding with the
// saved document.
func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request, user *store.User, fn func(*planner.Document) error) {
	ctx := detached(r)
	doc, err := s.deps.Store.LoadDocument(ctx, user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := fn(doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.SaveDocument(ctx, user.ID, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, doc)
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request, user *store.User) {
	var args map[string]any
	if err := decodeJSON(w, r, &args, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runTool(w, r, user, "add_task", args)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request, user *store.User) {
	s.runTool(w, r, user, "complete_task", map[string]any{"taskId": r.PathValue("id")})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, user *store.User) {
	s.runTool(w, r, user, "delete_task", map[string]any{"taskId": r.PathValue("id")})
}

func (s *Server) handleAddHabit(w http.ResponseWriter, r *http.Request, user *store.User) {
	var args map[string]any
	if err := decodeJSON(w, r, &args, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runTool(w, r, user, "add_habit", args)
}

func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request, user *store.User) {
	s.runTool(w, r, user, "delete_habit", map[string]any{"habitId": r.PathValue("id")})
}

// handleRebalance accepts an empty body, which means the default
// horizon.
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request, user *store.User) {
	args := map[string]any{}
	if err := decodeJSON(w, r, &args, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runTool(w, r, user, "rebalance_week", args)
}

// runTool executes one registry tool against the stored document and
// saves it on success. Failed calls leave the stored document as it was.
func (s *Server) runTool(w http.ResponseWriter, r *http.Request, user *store.User, name string, args map[string]any) {
	ctx := detached(r)
	doc, err := s.deps.Store.LoadDocument(ctx, user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	toolCtx := usage.WithAttribution(ctx, user.ID, usage.PurposeReschedule)
	res, err := s.deps.Tools.Execute(toolCtx, doc, name, args)
	if err != nil {
		s.logger.Info("tool call failed", "tool", name, "user_id", user.ID, "error", err)
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.SaveDocument(ctx, user.ID, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("tool call completed", "tool", name, "user_id", user.ID, "action", res.Action)
	s.respond(w, http.StatusOK, toolResponse{Result: res, Data: doc})
}

// previewRequest shadows the window fields so an absent key can be
// told apart from an explicit zero.
type previewRequest struct {
	reschedule.Request
	HorizonDays    *int `json:"horizonDays"`
	MaxHoursPerDay *int `json:"maxHoursPerDay"`
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// handleReschedule generates a schedule for the supplied request and
// returns it without touching the stored document.
func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request, user *store.User) {
	var in previewRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	req := in.Request
	days, hours, err := validate.Reschedule(req.Tasks, req.FixedBlocks,
		intOr(in.HorizonDays, validate.DefaultHorizonDays),
		intOr(in.MaxHoursPerDay, validate.DefaultHoursPerDay))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.HorizonDays, req.MaxHoursPerDay = days, hours
	req.Now = s.now()

	ctx := usage.WithAttribution(r.Context(), user.ID, usage.PurposeReschedule)
	blocks, err := s.deps.Scheduler.Generate(ctx, req)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("reschedule: %w", err))
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"blocks": blocks})
}
