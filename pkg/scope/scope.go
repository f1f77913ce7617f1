// Package scope resolves the tenant a caller acts on.
//
// Resolution rules:
//   - Regular and Admin callers are pinned to their home tenant; any tenant
//     named in the request is ignored
//   - CrossTenant callers may name a tenant by id or code; naming none yields
//     an all-tenants scope, which only read-only reports accept
package scope

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingTenant is returned when an operation needs a concrete tenant and none was resolved.
	ErrMissingTenant = errors.New("tenant is required")

	// ErrForbidden is returned when the caller lacks the capability for an operation.
	ErrForbidden = errors.New("forbidden")
)

// Role is the closed set of caller privileges
type Role int

const (
	RoleRegular Role = iota
	RoleAdmin
	RoleCrossTenant
)

// Stored role names
const (
	RoleNameVolunteer  = "volontario"
	RoleNameAdmin      = "admin"
	RoleNameSuperAdmin = "super_admin"
)

// ParseRole maps a stored role name to a Role. Unknown names are Regular.
func ParseRole(name string) Role {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case RoleNameSuperAdmin:
		return RoleCrossTenant
	case RoleNameAdmin:
		return RoleAdmin
	default:
		return RoleRegular
	}
}

func (r Role) String() string {
	switch r {
	case RoleCrossTenant:
		return RoleNameSuperAdmin
	case RoleAdmin:
		return RoleNameAdmin
	default:
		return RoleNameVolunteer
	}
}

// Caller is the authenticated identity behind a request
type Caller struct {
	Name         string
	Role         Role
	HomeTenantID uint
}

// Request carries the tenant a caller asked for, if any
type Request struct {
	TenantID   *uint
	TenantCode string
}

// Scope is the resolved tenant of an operation
type Scope struct {
	TenantID uint
	All      bool
}

// Require returns the concrete tenant id or ErrMissingTenant
func (s Scope) Require() (uint, error) {
	if s.All || s.TenantID == 0 {
		return 0, ErrMissingTenant
	}
	return s.TenantID, nil
}

// Filter returns the tenant pointer for store filters; nil means all tenants
func (s Scope) Filter() *uint {
	if s.All {
		return nil
	}
	id := s.TenantID
	return &id
}

// TenantLookup verifies tenants named by cross-tenant callers
type TenantLookup interface {
	TenantByID(ctx context.Context, id uint) (uint, error)
	TenantByCode(ctx context.Context, code string) (uint, error)
}

// Resolver turns a caller and a request into a Scope
type Resolver struct {
	Tenants TenantLookup
}

// NewResolver creates a resolver backed by the given tenant lookup
func NewResolver(tenants TenantLookup) *Resolver {
	return &Resolver{Tenants: tenants}
}

// Resolve computes the single authoritative tenant for the caller
func (r *Resolver) Resolve(ctx context.Context, caller Caller, req Request) (Scope, error) {
	switch caller.Role {
	case RoleCrossTenant:
		if req.TenantID != nil && *req.TenantID != 0 {
			id, err := r.Tenants.TenantByID(ctx, *req.TenantID)
			if err != nil {
				return Scope{}, fmt.Errorf("resolve tenant %d: %w", *req.TenantID, err)
			}
			return Scope{TenantID: id}, nil
		}
		if code := strings.TrimSpace(req.TenantCode); code != "" {
			id, err := r.Tenants.TenantByCode(ctx, code)
			if err != nil {
				return Scope{}, fmt.Errorf("resolve tenant %q: %w", code, err)
			}
			return Scope{TenantID: id}, nil
		}
		return Scope{All: true}, nil
	default:
		if caller.HomeTenantID == 0 {
			return Scope{}, ErrForbidden
		}
		return Scope{TenantID: caller.HomeTenantID}, nil
	}
}

// CanManage reports whether the caller may run allocations, resets and coverage reports
func CanManage(caller Caller) error {
	if caller.Role == RoleAdmin || caller.Role == RoleCrossTenant {
		return nil
	}
	return ErrForbidden
}
