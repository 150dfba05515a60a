// Package authshim loads an external authorization policy document and
// evaluates scope checks against it. It is consumed only by HTTP
// middleware, never by the core components, keeping with the framing of
// authorization/authentication as an external collaborator. The three-tier
// scope model (public/user/admin, plus self for per-user resources) follows
// the original hecate implementation's AuthWebhooks-style category scheme
// (original_source/src/auth/mod.rs), which this repo's core never had.
package authshim

import (
	"encoding/json"
	"os"

	"github.com/GrainArc/geofeatured/internal/apperr"
)

// Scope is an operation's required authorization category.
type Scope string

const (
	ScopePublic Scope = "public"
	ScopeUser   Scope = "user"
	ScopeAdmin  Scope = "admin"
	ScopeSelf   Scope = "self"
)

// Policy maps operation names to their configured scope. A missing entry
// defaults to ScopePublic, mirroring is_all's None-means-public behavior.
type Policy struct {
	Scopes map[string]Scope `json:"scopes"`
}

// Load reads a policy document from path.
func Load(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read auth policy", err)
	}
	var p Policy
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "invalid auth policy JSON", err)
	}
	for op, scope := range p.Scopes {
		if !validScope(scope) {
			return nil, apperr.New(apperr.KindInternal, "auth policy: '"+op+"' has an invalid scope")
		}
	}
	return &p, nil
}

func validScope(s Scope) bool {
	switch s {
	case ScopePublic, ScopeUser, ScopeAdmin, ScopeSelf:
		return true
	default:
		return false
	}
}

// ScopeFor returns the configured scope for op, defaulting to public.
func (p *Policy) ScopeFor(op string) Scope {
	if p == nil {
		return ScopePublic
	}
	if s, ok := p.Scopes[op]; ok {
		return s
	}
	return ScopePublic
}

// Identity is the caller identity established by whatever authentication
// mechanism sits in front of this shim (session, token, etc.) — this
// package only evaluates scopes, it never authenticates.
type Identity struct {
	UserID     int64
	IsAdmin    bool
	Authenticated bool
}

// Allows reports whether identity satisfies scope, per hecate's is_all
// (public/admin/user all pass a "user or admin" style gate)/is_self/is_auth
// rules, generalized into one evaluator.
func Allows(scope Scope, id Identity, resourceOwnerID int64) bool {
	switch scope {
	case ScopePublic:
		return true
	case ScopeUser:
		return id.Authenticated
	case ScopeAdmin:
		return id.Authenticated && id.IsAdmin
	case ScopeSelf:
		return id.Authenticated && (id.IsAdmin || id.UserID == resourceOwnerID)
	default:
		return false
	}
}
