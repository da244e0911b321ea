package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nugget/axis/internal/auth"
	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/validate"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validate.Registration(req.Email, req.Password, req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := s.deps.Auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.deps.Store.CreateUser(detached(r), req.Email, req.Name, hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("account registered", "user_id", user.ID)
	s.issueSession(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.deps.Store.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		s.writeError(w, r, auth.ErrInvalidCredentials)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.logger.Info("login rejected", "user_id", user.ID)
		s.writeError(w, r, err)
		return
	}
	s.issueSession(w, r, http.StatusOK, user)
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, code int, user *store.User) {
	token, err := s.deps.Auth.Issue(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, code, sessionResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user *store.User) {
	s.respond(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user *store.User) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validate.DisplayName(req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.UpdateName(detached(r), user.ID, req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.deps.Store.UserByID(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user *store.User) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	var errs validate.Errors
	validate.Password(&errs, "newPassword", req.NewPassword)
	if err := errs.Err(); err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := s.deps.Auth.HashPassword(req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.UpdatePasswordHash(detached(r), user.ID, hash); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("password changed", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteMe removes the account, its document and its usage
// history.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request, user *store.User) {
	ctx := detached(r)
	if err := s.deps.Store.DeleteUser(ctx, user.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Usage != nil {
		if err := s.deps.Usage.DeleteUser(ctx, user.ID); err != nil {
			s.writeError(w, r, fmt.Errorf("delete usage history: %w", err))
			return
		}
	}
	s.logger.Info("account deleted", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}
