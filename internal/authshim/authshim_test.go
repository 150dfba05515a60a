package authshim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeForDefaultsToPublic(t *testing.T) {
	var p *Policy
	assert.Equal(t, ScopePublic, p.ScopeFor("anything"))
}

func TestScopeForConfigured(t *testing.T) {
	p := &Policy{Scopes: map[string]Scope{"mutate": ScopeAdmin}}
	assert.Equal(t, ScopeAdmin, p.ScopeFor("mutate"))
	assert.Equal(t, ScopePublic, p.ScopeFor("other"))
}

func TestAllowsPublic(t *testing.T) {
	assert.True(t, Allows(ScopePublic, Identity{}, 0))
}

func TestAllowsUserRequiresAuthenticated(t *testing.T) {
	assert.False(t, Allows(ScopeUser, Identity{}, 0))
	assert.True(t, Allows(ScopeUser, Identity{Authenticated: true}, 0))
}

func TestAllowsAdminRequiresAdmin(t *testing.T) {
	assert.False(t, Allows(ScopeAdmin, Identity{Authenticated: true}, 0))
	assert.True(t, Allows(ScopeAdmin, Identity{Authenticated: true, IsAdmin: true}, 0))
}

func TestAllowsSelfRequiresOwnershipOrAdmin(t *testing.T) {
	id := Identity{Authenticated: true, UserID: 5}
	assert.True(t, Allows(ScopeSelf, id, 5))
	assert.False(t, Allows(ScopeSelf, id, 6))
	admin := Identity{Authenticated: true, IsAdmin: true, UserID: 1}
	assert.True(t, Allows(ScopeSelf, admin, 6))
}
