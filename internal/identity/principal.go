// Package identity carries the authenticated actor between the session layer
// and the authorization core.
package identity

import (
	"context"
	"strings"
)

// Anonymous marks events and checks without an authenticated principal.
const Anonymous = "anonymous"

// Principal is the authenticated actor. Handle is the opaque identifier issued
// by the identity provider; Roles lists assigned role names.
// RolesUnavailable marks a principal whose assignments could not be loaded;
// every permission check on it fails closed as a store outage.
type Principal struct {
	Handle           string
	Roles            []string
	RolesUnavailable bool
}

// Authenticated reports whether the principal carries an identity handle.
func (p *Principal) Authenticated() bool {
	return p != nil && strings.TrimSpace(p.Handle) != ""
}

// HasRole reports whether the role is assigned to the principal.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// ActorHandle returns the handle used in audit records.
func (p *Principal) ActorHandle() string {
	if !p.Authenticated() {
		return Anonymous
	}
	return p.Handle
}

type principalContextKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext extracts the principal from context.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
