// Package ownerctx carries the admin-owner shortcut through
// context.Context, per spec.md §9: the admin UUID is configured once at
// process startup and every ownership check must see it, but never as a
// package global.
package ownerctx

import "context"

type adminOwnerKey struct{}

// WithAdminOwner returns a context carrying adminUUID as the admin
// owner. The HTTP layer's admin-owner middleware calls it on every
// request with the admin UUID configured at startup.
func WithAdminOwner(ctx context.Context, adminUUID string) context.Context {
	return context.WithValue(ctx, adminOwnerKey{}, adminUUID)
}

// AdminOwner returns the admin owner UUID carried by ctx, or "" if none
// was set.
func AdminOwner(ctx context.Context) string {
	v, _ := ctx.Value(adminOwnerKey{}).(string)
	return v
}

// IsAdmin reports whether ownerUUID is the configured admin owner.
func IsAdmin(ctx context.Context, ownerUUID string) bool {
	admin := AdminOwner(ctx)
	return admin != "" && admin == ownerUUID
}

// Permits reports whether caller is authorized against a resource's
// owner set: either caller is a member of owners, owners is empty
// (meaning "all owners permitted"), or caller is the configured admin.
func Permits(ctx context.Context, owners []string, caller string) bool {
	if IsAdmin(ctx, caller) {
		return true
	}
	if len(owners) == 0 {
		return true
	}
	for _, o := range owners {
		if o == caller {
			return true
		}
	}
	return false
}
