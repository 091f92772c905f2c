package auth

import (
	"context"
)

var identityCtxKey = &contextKey{"identity"}
var abilityCtxKey = &contextKey{"ability"}

type contextKey struct {
	name string
}

// WithIdentity sets the authenticated identity in the given context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(identityCtxKey).(Identity)
	return raw, ok && raw != nil
}

// WithAbility sets the caller Ability in the given context
func WithAbility(ctx context.Context, ability Ability) context.Context {
	return context.WithValue(ctx, abilityCtxKey, ability)
}

// AbilityFromContext extracts the Ability. A missing ability is returned as an
// empty one so callers can still ask Can and get false.
func AbilityFromContext(ctx context.Context) (Ability, bool) {
	if ctx == nil {
		return Ability{}, false
	}
	raw, ok := ctx.Value(abilityCtxKey).(Ability)
	return raw, ok
}

// Can is a convenience function to check permissions directly from the context
func Can(ctx context.Context, action string, resource any) bool {
	ability, ok := AbilityFromContext(ctx)
	if !ok {
		return false
	}
	return ability.Can(action, resource)
}

// Cannot is the negation of Can.
func Cannot(ctx context.Context, action string, resource any) bool {
	return !Can(ctx, action, resource)
}
