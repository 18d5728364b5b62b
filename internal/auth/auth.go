// Package auth verifies bearer tokens issued by the identity provider. The token subject is
// the user id every collection is scoped to.
package auth

import (
	"slices"
	"time"
)

// Resource is a collection guarded by "<resource>:read" and "<resource>:write" scopes.
type Resource string

const (
	Tasks     Resource = "tasks"
	Reminders Resource = "reminders"
	Steps     Resource = "steps"
)

// Access is what a scope grants on a resource.
type Access string

const (
	Read  Access = "read"
	Write Access = "write"
)

// Scope returns the scope string granting a on r.
func (r Resource) Scope(a Access) string {
	return string(r) + ":" + string(a)
}

// Principal is a verified caller.
type Principal struct {
	UserID    string
	ExpiresAt time.Time
	scopes    map[string]struct{}
}

// NewPrincipal builds a Principal holding scopes. Empty scopes are dropped.
func NewPrincipal(userID string, expiresAt time.Time, scopes ...string) *Principal {
	p := &Principal{UserID: userID, ExpiresAt: expiresAt, scopes: make(map[string]struct{}, len(scopes))}
	for _, s := range scopes {
		if s != "" {
			p.scopes[s] = struct{}{}
		}
	}
	return p
}

// Scopes returns the granted scopes in sorted order.
func (p *Principal) Scopes() []string {
	out := make([]string, 0, len(p.scopes))
	for s := range p.scopes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Allows reports whether p may access res at level a. Write implies read.
func (p *Principal) Allows(res Resource, a Access) bool {
	if p == nil {
		return false
	}
	if _, ok := p.scopes[res.Scope(a)]; ok {
		return true
	}
	if a == Read {
		_, ok := p.scopes[res.Scope(Write)]
		return ok
	}
	return false
}
