package security

import "context"

type identityContextKey struct{}
type rolesContextKey struct{}

// ContextWithIdentity attaches the signed-on identity and its role snapshot.
func ContextWithIdentity(ctx context.Context, identity *Identity, roles Roles) context.Context {
	if identity == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, identityContextKey{}, identity)
	return context.WithValue(ctx, rolesContextKey{}, roles)
}

// IdentityFromContext extracts the signed-on identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// RolesFromContext returns the role snapshot stored with the identity.
func RolesFromContext(ctx context.Context) (Roles, bool) {
	if ctx == nil {
		return Roles{}, false
	}
	v, ok := ctx.Value(rolesContextKey{}).(Roles)
	return v, ok
}
