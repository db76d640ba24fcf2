package shared

import "context"

type ownerContextKey struct{}

// ContextWithOwner stores the authenticated owner id in context.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, ownerID)
}

// OwnerFromContext extracts the authenticated owner id.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(string)
	return owner, ok && owner != ""
}
