package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/shared"
)

// RoleSource returns role names for a handle.
type RoleSource interface {
	RolesFor(ctx context.Context, handle string) ([]string, error)
}

// DefaultLookupTimeout bounds the role lookup when no timeout is configured.
const DefaultLookupTimeout = 3 * time.Second

// PrincipalResolver turns the session user into an identity.Principal.
type PrincipalResolver struct {
	roles   RoleSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewPrincipalResolver constructs a resolver. Role lookups are cut off after
// timeout; timeout <= 0 uses DefaultLookupTimeout.
func NewPrincipalResolver(roles RoleSource, timeout time.Duration, logger *slog.Logger) *PrincipalResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &PrincipalResolver{roles: roles, timeout: timeout, logger: logger}
}

// Resolve builds the principal for handle. A failed or stalled role lookup
// yields a principal marked RolesUnavailable, which every check denies.
func (p *PrincipalResolver) Resolve(ctx context.Context, handle string) *identity.Principal {
	if handle == "" {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type lookup struct {
		names []string
		err   error
	}
	done := make(chan lookup, 1)
	go func() {
		names, err := p.roles.RolesFor(lookupCtx, handle)
		done <- lookup{names: names, err: err}
	}()

	var res lookup
	select {
	case res = <-done:
	case <-lookupCtx.Done():
		res = lookup{err: lookupCtx.Err()}
	}
	if res.err != nil {
		p.logger.Warn("resolve principal roles", slog.Any("error", res.err), slog.String("handle", handle))
		return &identity.Principal{Handle: handle, RolesUnavailable: true}
	}
	return &identity.Principal{Handle: handle, Roles: res.names}
}

// Middleware stores the session principal in the request context.
func (p *PrincipalResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal := p.Resolve(r.Context(), sess.User())
		next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
	})
}
