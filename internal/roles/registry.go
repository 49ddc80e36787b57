// Package roles holds the administrative authority registry: the owner and
// the set of principals granted mint/burn authority. The ledger core treats
// authorization as a precondition; enforcement happens here, at the
// collaborator boundary.
package roles

import (
	"errors"
	"sync"
)

// ErrNotOwner is returned when a non-owner principal attempts an
// owner-gated operation.
var ErrNotOwner = errors.New("caller is not the owner")

// Registry tracks the owner and mint/burn authorities.
type Registry struct {
	mu          sync.RWMutex
	owner       string
	authorities map[string]struct{}
}

// NewRegistry creates a registry with the given owner. The owner always
// holds mint/burn authority.
func NewRegistry(owner string) *Registry {
	return &Registry{
		owner:       owner,
		authorities: make(map[string]struct{}),
	}
}

// Owner returns the owning principal.
func (r *Registry) Owner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// IsOwner reports whether principal is the owner.
func (r *Registry) IsOwner(principal string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return principal != "" && principal == r.owner
}

// Grant gives principal mint/burn authority. Only the owner may grant.
func (r *Registry) Grant(caller, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	r.authorities[principal] = struct{}{}
	return nil
}

// Revoke removes principal's mint/burn authority. Only the owner may revoke.
func (r *Registry) Revoke(caller, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	delete(r.authorities, principal)
	return nil
}

// IsAuthorized reports whether principal may mint and burn.
func (r *Registry) IsAuthorized(principal string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if principal == "" {
		return false
	}
	if principal == r.owner {
		return true
	}
	_, ok := r.authorities[principal]
	return ok
}
