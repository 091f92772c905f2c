package auth0

import (
	"context"
	"fmt"
	"strings"

	auth "github.com/goliatone/go-auth0-bearer"
)

// PermissionsPageSize is the page size used when listing user permissions.
const PermissionsPageSize = 100

// PermissionResolver turns a principal into its granted scopes using the
// management API.
type PermissionResolver struct {
	api       ManagementAPI
	audiences []string
	logger    auth.Logger
}

// PermissionResolverOption configures a PermissionResolver.
type PermissionResolverOption func(*PermissionResolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger auth.Logger) PermissionResolverOption {
	return func(r *PermissionResolver) {
		r.logger = auth.EnsureLogger(logger)
	}
}

// NewPermissionResolver creates a resolver restricted to cfg.Audience.
func NewPermissionResolver(cfg Config, api ManagementAPI, opts ...PermissionResolverOption) (*PermissionResolver, error) {
	if api == nil {
		return nil, fmt.Errorf("auth0: management api is required")
	}
	if len(cfg.Audience) == 0 {
		return nil, fmt.Errorf("auth0: audience is required")
	}

	r := &PermissionResolver{
		api:       api,
		audiences: append([]string(nil), cfg.Audience...),
		logger:    auth.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Resolve returns the permissions granted to principal. Failures are
// reported as ErrPermissionFetch and never carry a partial list.
func (r *PermissionResolver) Resolve(ctx context.Context, principal Principal, email string) ([]string, error) {
	switch p := principal.(type) {
	case Bot:
		return r.resolveBot(ctx, p)
	case Human:
		return r.resolveHuman(ctx, p, email)
	case nil:
		return nil, auth.WrapError(auth.ErrPermissionFetch, nil, map[string]any{"reason": "no principal"})
	default:
		return nil, auth.WrapError(auth.ErrPermissionFetch, nil, map[string]any{
			"reason": fmt.Sprintf("unsupported principal %T", principal),
		})
	}
}

// resolveBot asks for the client grants of each audience in order. The
// first grant of the first non-empty answer is used.
func (r *PermissionResolver) resolveBot(ctx context.Context, bot Bot) ([]string, error) {
	for _, audience := range r.audiences {
		grants, err := r.api.ClientGrants(ctx, bot.ClientID, audience)
		if err != nil {
			return nil, r.fetchError(err, bot, "client_grants")
		}
		if len(grants) == 0 {
			continue
		}

		var scopes []string
		for _, scope := range grants[0].Scopes {
			scopes = append(scopes, strings.Fields(scope)...)
		}
		return dedupe(scopes), nil
	}
	return []string{}, nil
}

func (r *PermissionResolver) resolveHuman(ctx context.Context, human Human, email string) ([]string, error) {
	if email == "" {
		r.logger.Debug("auth0 permissions skipped, no email", "principal", human.ID())
		return []string{}, nil
	}

	users, err := r.api.UsersByEmail(ctx, email)
	if err != nil {
		return nil, r.fetchError(err, human, "users_by_email")
	}

	userID := matchUser(users, human.LocalID())
	if userID == "" {
		return []string{}, nil
	}

	var permissions []string
	for page := 0; ; page++ {
		result, err := r.api.UserPermissions(ctx, userID, page, PermissionsPageSize)
		if err != nil {
			return nil, r.fetchError(err, human, "user_permissions")
		}

		for _, p := range result.Permissions {
			if r.isAudience(p.ResourceServerIdentifier) {
				permissions = append(permissions, p.Name)
			}
		}

		start := max(result.Start, page*PermissionsPageSize)
		if len(result.Permissions) == 0 || start+PermissionsPageSize >= result.Total {
			break
		}
	}
	return dedupe(permissions), nil
}

func (r *PermissionResolver) isAudience(identifier string) bool {
	for _, a := range r.audiences {
		if a == identifier {
			return true
		}
	}
	return false
}

func (r *PermissionResolver) fetchError(err error, principal Principal, step string) error {
	r.logger.Error("auth0 permission fetch failed", "principal", principal.ID(), "step", step, "error", err)
	return auth.WrapError(auth.ErrPermissionFetch, err, map[string]any{
		"principal": principal.ID(),
		"step":      step,
	})
}

// matchUser returns the management id of the user owning an identity with
// localID.
func matchUser(users []ManagedUser, localID string) string {
	for _, u := range users {
		for _, identity := range u.Identities {
			if identity.UserID == localID {
				return u.ID
			}
		}
	}
	return ""
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
