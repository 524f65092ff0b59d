package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Wrap them with context using %w.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrDuplicate      = errors.New("duplicate entry")
	ErrValidation     = errors.New("validation failed")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnavailable    = errors.New("temporarily unavailable")
	ErrNotImplemented = errors.New("not implemented")
)

type mapping struct {
	err    error
	status int
	// expose echoes err.Error() as the problem detail.
	expose bool
}

// Order matters: the first sentinel matched by errors.Is wins.
var mappings = []mapping{
	{ErrNotFound, http.StatusNotFound, true},
	{ErrDuplicate, http.StatusConflict, true},
	{ErrValidation, http.StatusBadRequest, true},
	{ErrForbidden, http.StatusForbidden, false},
	{ErrUnauthorized, http.StatusUnauthorized, false},
	{ErrRateLimited, http.StatusTooManyRequests, false},
	{ErrUnavailable, http.StatusServiceUnavailable, false},
	{ErrNotImplemented, http.StatusNotImplemented, true},
}

// RespondError maps err to an RFC7807 response. Details of forbidden,
// unavailable and internal errors are never echoed to the client.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range mappings {
		if !errors.Is(err, m.err) {
			continue
		}
		detail := ""
		if m.expose {
			detail = err.Error()
		}
		if m.status == http.StatusTooManyRequests || m.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "60")
		}
		Problem(w, m.status, http.StatusText(m.status), detail)
		return
	}
	Problem(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "")
}
