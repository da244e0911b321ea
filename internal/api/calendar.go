package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/axis/internal/calendar"
	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/store"
)

const qrSize = 256

type calendarTokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (s *Server) handleCalendarToken(w http.ResponseWriter, r *http.Request, user *store.User) {
	token, err := s.deps.Store.CalendarToken(detached(r), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, calendarTokenResponse{
		Token: token,
		URL:   calendar.SubscriptionURL(s.baseURL(r), token),
	})
}

// handleRotateCalendarToken invalidates existing subscriptions.
func (s *Server) handleRotateCalendarToken(w http.ResponseWriter, r *http.Request, user *store.User) {
	token, err := s.deps.Store.RotateCalendarToken(detached(r), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("calendar token rotated", "user_id", user.ID)
	s.respond(w, http.StatusOK, calendarTokenResponse{
		Token: token,
		URL:   calendar.SubscriptionURL(s.baseURL(r), token),
	})
}

func (s *Server) handleCalendarQR(w http.ResponseWriter, r *http.Request, user *store.User) {
	token, err := s.deps.Store.CalendarToken(detached(r), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	png, err := calendar.QRCode(calendar.SubscriptionURL(s.baseURL(r), token), qrSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("failed to write QR code", "error", err)
	}
}

// handleCalendarFeed serves the public iCalendar feed. The token in
// the path is the only credential.
func (s *Server) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSuffix(r.PathValue("token"), ".ics")
	user, err := s.deps.Store.UserByCalendarToken(r.Context(), token)
	if errors.Is(err, store.ErrUserNotFound) {
		s.errorResponse(w, http.StatusNotFound, "calendar not found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.deps.Store.LoadDocument(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := calendar.Encode(doc, calendar.Options{
		Name:     user.Name + "'s study plan",
		Location: profileLocation(doc.Profile),
		Now:      s.now(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", calendar.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="axis.ics"`)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("failed to write calendar feed", "error", err)
	}
}

// profileLocation reads an IANA zone name from the profile's
// "timezone" entry. Unknown or missing zones give UTC.
func profileLocation(p planner.Profile) *time.Location {
	name, _ := p["timezone"].(string)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// baseURL is the configured public URL, or one derived from the
// request when none is configured.
func (s *Server) baseURL(r *http.Request) string {
	if s.deps.PublicURL != "" {
		return s.deps.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
