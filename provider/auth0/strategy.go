package auth0

import (
	"context"
	"fmt"
	"strings"

	auth "github.com/goliatone/go-auth0-bearer"
	"github.com/goliatone/go-auth0-bearer/scopecache"
)

// PermissionSource resolves the permissions of a principal.
type PermissionSource interface {
	Resolve(ctx context.Context, principal Principal, email string) ([]string, error)
}

// Result is the outcome of a successful authentication.
type Result struct {
	Identity  auth.Identity
	Principal Principal
	Claims    *Claims
	Ability   auth.Ability
	// AuthorizationErr is set when permissions could not be resolved. The
	// caller is authenticated but Ability grants nothing.
	AuthorizationErr error
}

// Strategy authenticates bearer tokens end to end: verification, identity
// binding, and permission resolution through the scope cache.
type Strategy struct {
	config   Config
	verifier *TokenVerifier
	source   PermissionSource
	binder   auth.IdentityBinder
	cache    *scopecache.Cache
	logger   auth.Logger
}

// StrategyOption configures a Strategy.
type StrategyOption func(*Strategy)

// WithScopeCache replaces the default in-memory scope cache.
func WithScopeCache(cache *scopecache.Cache) StrategyOption {
	return func(s *Strategy) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithStrategyLogger sets the logger. A nil logger silences the strategy.
func WithStrategyLogger(logger auth.Logger) StrategyOption {
	return func(s *Strategy) {
		s.logger = auth.EnsureLogger(logger)
	}
}

// NewStrategy wires the pipeline. Without WithScopeCache, permissions are
// cached in memory for cfg.CacheExpiresIn. Without WithStrategyLogger, a
// glog logger named "auth0" is used and shared with the default cache.
func NewStrategy(verifier *TokenVerifier, source PermissionSource, binder auth.IdentityBinder, opts ...StrategyOption) (*Strategy, error) {
	if verifier == nil {
		return nil, fmt.Errorf("auth0: token verifier is required")
	}
	if source == nil {
		return nil, fmt.Errorf("auth0: permission source is required")
	}
	if binder == nil {
		return nil, fmt.Errorf("auth0: identity binder is required")
	}

	cfg := verifier.Config()
	s := &Strategy{
		config:   cfg,
		verifier: verifier,
		source:   source,
		binder:   binder,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = auth.DefaultLogger("auth0")
	}
	if s.cache == nil {
		s.cache = scopecache.New(
			scopecache.NewMemoryStore(),
			scopecache.WithTTL(cfg.CacheExpiresIn),
			scopecache.WithLogger(s.logger),
		)
	}
	return s, nil
}

// Valid reports whether a token is present at all.
func (s *Strategy) Valid(raw string) bool {
	return strings.TrimSpace(raw) != ""
}

// Authenticate verifies raw and resolves the caller. Any verification
// failure is reported as ErrTokenInvalid. Permission failures do not fail
// authentication; see Result.AuthorizationErr.
func (s *Strategy) Authenticate(ctx context.Context, raw string) (*Result, error) {
	claims, err := s.verifier.Token(raw).Verify(ctx)
	if err != nil {
		s.logger.Debug("auth0 authentication failed", "code", auth.TextCode(err))
		if auth.IsTokenInvalid(err) {
			return nil, err
		}
		return nil, auth.WrapError(auth.ErrTokenInvalid, err, nil)
	}

	principal := claims.Principal()
	email := claims.EmailFrom(s.config.EmailClaim)

	if !principal.IsBot() {
		if err := s.checkEmail(email); err != nil {
			s.logger.Info("auth0 email rejected", "principal", principal.ID())
			return nil, err
		}
	}

	identity, err := s.binder.FindOrCreate(ctx, principal.Provider(), principal.LocalID(), email)
	if err != nil {
		s.logger.Error("auth0 identity binding failed", "principal", principal.ID(), "error", err)
		return nil, err
	}

	result := &Result{
		Identity:  identity,
		Principal: principal,
		Claims:    claims,
	}

	key := s.CacheKey(principal)
	scopes, err := s.cache.Fetch(ctx, key, func(ctx context.Context) ([]string, error) {
		return s.source.Resolve(ctx, principal, email)
	})
	if err != nil {
		if !auth.IsPermissionFetchError(err) {
			err = auth.WrapError(auth.ErrPermissionFetch, err, map[string]any{"principal": principal.ID()})
		}
		s.logger.Warn("auth0 permissions unavailable", "principal", principal.ID(), "code", auth.TextCode(err))
		result.Ability = auth.NewAbility(nil)
		result.AuthorizationErr = err
		return result, nil
	}

	if err := s.binder.AttachScopes(ctx, identity, scopes); err != nil {
		s.logger.Warn("auth0 attach scopes failed", "principal", principal.ID(), "error", err)
	}

	result.Ability = auth.NewAbility(scopes)
	return result, nil
}

// CacheKey returns the scope cache key of principal.
func (s *Strategy) CacheKey(principal Principal) string {
	return scopecache.Key(s.config.CacheNamespace, principal.Provider(), principal.LocalID())
}

// Invalidate drops the cached permissions of principal.
func (s *Strategy) Invalidate(ctx context.Context, principal Principal) error {
	return s.cache.Invalidate(ctx, s.CacheKey(principal))
}

func (s *Strategy) checkEmail(email string) error {
	allow := s.config.EmailDomainsAllowlist
	block := s.config.EmailDomainsBlocklist
	if len(allow) == 0 && len(block) == 0 {
		return nil
	}

	domain := emailDomain(email)
	if len(allow) > 0 && !containsFold(allow, domain) {
		return auth.WrapError(auth.ErrEmailDomainRejected, nil, map[string]any{"domain": domain})
	}
	if containsFold(block, domain) {
		return auth.WrapError(auth.ErrEmailDomainRejected, nil, map[string]any{"domain": domain})
	}
	return nil
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

func containsFold(values []string, v string) bool {
	if v == "" {
		return false
	}
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}
