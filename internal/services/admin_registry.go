package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/logger"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
)

// AdminRegistry maps addresses to the roles they hold.
// The owner holds the admin role for the registry's whole life.
type AdminRegistry struct {
	mu    sync.RWMutex
	owner common.Address
	roles map[common.Address]map[models.Role]bool
	store storage.Store
}

// NewAdminRegistry restores the role table from state and makes sure owner is an admin.
func NewAdminRegistry(ctx context.Context, owner common.Address, store storage.Store, state *storage.State) (*AdminRegistry, error) {
	r := &AdminRegistry{
		owner: owner,
		roles: make(map[common.Address]map[models.Role]bool),
		store: store,
	}
	if state != nil {
		for addr, roles := range state.Roles {
			for _, role := range roles {
				r.set(addr, role)
			}
		}
	}
	if !r.roles[owner][models.RoleAdmin] {
		if err := store.PutRole(ctx, owner, models.RoleAdmin); err != nil {
			return nil, fmt.Errorf("grant owner admin: %w", err)
		}
		r.set(owner, models.RoleAdmin)
	}
	return r, nil
}

// Owner returns the registry owner.
func (r *AdminRegistry) Owner() common.Address {
	return r.owner
}

// HasRole reports whether addr holds role.
func (r *AdminRegistry) HasRole(addr common.Address, role models.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.has(addr, role)
}

// Roles returns the roles held by addr.
func (r *AdminRegistry) Roles(addr common.Address) []models.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := []models.Role{}
	for _, role := range models.Roles {
		if r.has(addr, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

// AddAdmin grants the admin role to target.
func (r *AdminRegistry) AddAdmin(ctx context.Context, caller, target common.Address) error {
	return r.GrantRole(ctx, caller, target, models.RoleAdmin)
}

// GrantRole gives role to target. The caller must be an admin.
func (r *AdminRegistry) GrantRole(ctx context.Context, caller, target common.Address, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has(caller, models.RoleAdmin) {
		return errs.Newf(errs.PermissionDenied, "caller", "%s is not an admin", caller.Hex())
	}
	if r.has(target, role) {
		return nil
	}
	if err := r.store.PutRole(ctx, target, role); err != nil {
		logger.Errorf("Failed to persist role %s for %s: %v", role, target.Hex(), err)
		return fmt.Errorf("grant role: %w", err)
	}
	r.set(target, role)
	logger.Infof("Granted role %s to %s (by %s)", role, target.Hex(), caller.Hex())
	return nil
}

// RevokeRole removes role from target. The caller must be an admin, and the
// owner's admin role can never be revoked.
func (r *AdminRegistry) RevokeRole(ctx context.Context, caller, target common.Address, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has(caller, models.RoleAdmin) {
		return errs.Newf(errs.PermissionDenied, "caller", "%s is not an admin", caller.Hex())
	}
	if target == r.owner && role == models.RoleAdmin {
		return errs.New(errs.InvalidState, "target", "the owner's admin role cannot be revoked")
	}
	if !r.has(target, role) {
		return nil
	}
	if err := r.store.DeleteRole(ctx, target, role); err != nil {
		logger.Errorf("Failed to delete role %s for %s: %v", role, target.Hex(), err)
		return fmt.Errorf("revoke role: %w", err)
	}
	delete(r.roles[target], role)
	if len(r.roles[target]) == 0 {
		delete(r.roles, target)
	}
	logger.Infof("Revoked role %s from %s (by %s)", role, target.Hex(), caller.Hex())
	return nil
}

// requireAnyRole fails with PermissionDenied unless addr holds one of roles.
func (r *AdminRegistry) requireAnyRole(addr common.Address, roles ...models.Role) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range roles {
		if r.has(addr, role) {
			return nil
		}
	}
	return errs.Newf(errs.PermissionDenied, "caller", "%s lacks role %v", addr.Hex(), roles)
}

func (r *AdminRegistry) has(addr common.Address, role models.Role) bool {
	if addr == r.owner && role == models.RoleAdmin {
		return true
	}
	return r.roles[addr][role]
}

func (r *AdminRegistry) set(addr common.Address, role models.Role) {
	if r.roles[addr] == nil {
		r.roles[addr] = make(map[models.Role]bool)
	}
	r.roles[addr][role] = true
}
