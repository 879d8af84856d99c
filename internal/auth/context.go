// ABOUTME: Authenticated identity and context plumbing for request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Role is the caller's role as asserted by the external auth service.
type Role string

const (
	RoleUser    Role = "user"    // end-user requesting support
	RoleSupport Role = "support" // support agent handling conversations
	RoleAdmin   Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleSupport, RoleAdmin:
		return true
	}
	return false
}

// Identity holds the authenticated caller extracted from a verified token.
// The gateway trusts the external auth collaborator for {id, role}; nothing
// in this process issues credentials.
type Identity struct {
	ID   string
	Role Role
}

// IsAdmin returns true if the identity has the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// IsSupport returns true if the identity has the support role.
func (i Identity) IsSupport() bool {
	return i.Role == RoleSupport
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context. The second return
// value is false if no identity is present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// MustFromContext retrieves the Identity from the context, panicking if not
// present. Only for handlers that run strictly behind the auth middleware.
func MustFromContext(ctx context.Context) Identity {
	id, ok := FromContext(ctx)
	if !ok {
		panic("auth: Identity not found in context")
	}
	return id
}
