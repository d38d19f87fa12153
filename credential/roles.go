package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RoleTable maps a role name to the table whose rows grant it.
type RoleTable struct {
	Role  string
	Table string
}

// DefaultRoleTables is the membership layout of the stock schema.
func DefaultRoleTables() []RoleTable {
	return []RoleTable{
		{Role: "admin", Table: "admins"},
		{Role: "finca", Table: "fincas"},
	}
}

// ParseRoleTables parses "role:table,role:table". Order is preserved and decides
// which role wins for users present in several tables.
func ParseRoleTables(raw string) ([]RoleTable, error) {
	var out []RoleTable
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		role, table, ok := strings.Cut(entry, ":")
		role, table = strings.TrimSpace(role), strings.TrimSpace(table)
		if !ok || role == "" || table == "" {
			return nil, fmt.Errorf("invalid role table entry %q", entry)
		}
		if _, dup := seen[role]; dup {
			return nil, fmt.Errorf("duplicate role %q", role)
		}
		seen[role] = struct{}{}
		out = append(out, RoleTable{Role: role, Table: table})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one role table is required")
	}
	return out, nil
}

// RoleResolver picks the role for a user by probing role tables in order.
//
// A user present in more than one table resolves to the first configured role.
type RoleResolver struct {
	store RoleStore
	roles []string
}

func NewRoleResolver(store RoleStore, tables []RoleTable) (*RoleResolver, error) {
	if store == nil {
		return nil, errors.New("role store required")
	}
	if len(tables) == 0 {
		return nil, errors.New("at least one role table is required")
	}
	roles := make([]string, 0, len(tables))
	for _, t := range tables {
		roles = append(roles, t.Role)
	}
	return &RoleResolver{store: store, roles: roles}, nil
}

// Roles returns the configured roles in probe order.
func (r *RoleResolver) Roles() []string {
	return append([]string(nil), r.roles...)
}

// Resolve returns the first role the user holds. ok is false when none match.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) (role string, ok bool, err error) {
	for _, candidate := range r.roles {
		has, err := r.store.HasRole(ctx, userID, candidate)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if has {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// HasAny reports whether the user's resolved role is one of roles. A user holding
// several roles is judged by the first configured one, the same role their tokens
// carry.
func (r *RoleResolver) HasAny(ctx context.Context, userID string, roles ...string) (bool, error) {
	resolved, ok, err := r.Resolve(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	for _, role := range roles {
		if role == resolved {
			return true, nil
		}
	}
	return false, nil
}
