package api

import (
	"net/http"
	"time"

	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/usage"
)

// usageWindow is how far back GET /api/usage reports.
const usageWindow = 30 * 24 * time.Hour

type usageResponse struct {
	Start     time.Time                 `json:"start"`
	End       time.Time                 `json:"end"`
	Total     *usage.Summary            `json:"total"`
	ByPurpose map[string]*usage.Summary `json:"byPurpose"`
	ByModel   map[string]*usage.Summary `json:"byModel"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, user *store.User) {
	if s.deps.Usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage tracking not configured")
		return
	}
	end := s.now().UTC()
	start := end.Add(-usageWindow)

	total, err := s.deps.Usage.Summary(r.Context(), user.ID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byPurpose, err := s.deps.Usage.SummaryByPurpose(r.Context(), user.ID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	byModel, err := s.deps.Usage.SummaryByModel(r.Context(), user.ID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, usageResponse{
		Start:     start,
		End:       end,
		Total:     total,
		ByPurpose: byPurpose,
		ByModel:   byModel,
	})
}
