package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nugget/axis/internal/auth"
	"github.com/nugget/axis/internal/llm"
	"github.com/nugget/axis/internal/reschedule"
	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/tools"
	"github.com/nugget/axis/internal/validate"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// requestError carries a client-facing message for errBadRequest.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor maps an error kind onto an HTTP status code.
func statusFor(err error) int {
	var (
		verr        *validate.Error
		verrs       validate.Errors
		unavailable *tools.ErrToolUnavailable
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.As(err, &verrs),
		errors.As(err, &verr),
		errors.Is(err, tools.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, tools.ErrNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.As(err, &unavailable):
		return http.StatusNotFound
	case errors.Is(err, tools.ErrPreconditionFailed),
		errors.Is(err, reschedule.ErrNoTasks),
		errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, llm.ErrUpstreamUnavailable),
		errors.Is(err, llm.ErrUpstreamMalformed),
		errors.Is(err, reschedule.ErrInvalidResult):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the status for err. Internal failures are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", logPath(r), "error", err)
		msg = "internal error"
	} else if code == http.StatusBadGateway {
		s.logger.Warn("upstream failure", "path", logPath(r), "error", err)
	}
	s.errorResponse(w, code, msg)
}
