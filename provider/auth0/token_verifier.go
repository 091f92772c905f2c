package auth0

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth0-bearer"
)

// TokenVerifier checks Auth0 access tokens against the tenant key set.
// It holds no per-request state and is safe for concurrent use.
type TokenVerifier struct {
	config   Config
	issuer   string
	resolver KeyResolver
	parser   *jwt.Parser
	logger   auth.Logger
}

// TokenVerifierOption configures a TokenVerifier.
type TokenVerifierOption func(*TokenVerifier)

// WithVerifierLogger sets the logger.
func WithVerifierLogger(logger auth.Logger) TokenVerifierOption {
	return func(v *TokenVerifier) {
		v.logger = auth.EnsureLogger(logger)
	}
}

// NewTokenVerifier creates a verifier. The config is validated and completed
// with defaults.
func NewTokenVerifier(cfg Config, resolver KeyResolver, opts ...TokenVerifierOption) (*TokenVerifier, error) {
	if resolver == nil {
		return nil, fmt.Errorf("auth0: key resolver is required")
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth0: invalid config: %w", err)
	}

	issuer := cfg.IssuerURL()
	v := &TokenVerifier{
		config:   cfg,
		issuer:   issuer,
		resolver: resolver,
		logger:   auth.NopLogger{},
		parser: jwt.NewParser(
			jwt.WithValidMethods(cfg.Algorithms),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Config returns the completed configuration.
func (v *TokenVerifier) Config() Config {
	return v.config
}

// Token wraps raw for a single request.
func (v *TokenVerifier) Token(raw string) *Token {
	return &Token{raw: raw, verifier: v}
}

// Verify checks raw and returns its claims.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	return v.Token(raw).Verify(ctx)
}

func (v *TokenVerifier) verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, auth.WrapError(auth.ErrTokenInvalid, nil, map[string]any{"reason": "empty token"})
	}

	var keyErr error
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			keyErr = auth.WrapError(auth.ErrTokenInvalid, nil, map[string]any{"reason": "missing kid"})
			return nil, keyErr
		}

		keys, err := v.resolver.ResolveKeys(ctx)
		if err != nil {
			keyErr = err
			return nil, err
		}

		key, ok := keys[kid]
		if !ok {
			keyErr = auth.WrapError(auth.ErrUnknownSigningKey, nil, map[string]any{"kid": kid})
			return nil, keyErr
		}
		return key, nil
	})

	if keyErr != nil {
		return nil, keyErr
	}
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if !v.audienceMatches(claims.Audience) {
		return nil, auth.WrapError(auth.ErrTokenInvalid, jwt.ErrTokenInvalidAudience, map[string]any{
			"reason": "audience",
		})
	}
	return claims, nil
}

func (v *TokenVerifier) audienceMatches(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if v.config.hasAudience(a) {
			return true
		}
	}
	return false
}

func normalizeValidationError(err error) error {
	reason := "malformed"
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = "expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		reason = "missing claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		reason = "issuer"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = "signature"
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		reason = "not yet valid"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = "unverifiable"
	}
	return auth.WrapError(auth.ErrTokenInvalid, err, map[string]any{
		"provider": "auth0",
		"reason":   reason,
	})
}

// Token is a raw bearer token bound to one request. Verification runs at
// most once; every accessor reuses its outcome.
type Token struct {
	raw      string
	verifier *TokenVerifier

	once   sync.Once
	claims *Claims
	err    error
}

// Raw returns the undecoded token.
func (t *Token) Raw() string {
	return t.raw
}

// Verify returns the verified claims or the verification error. Only the
// first call does any work.
func (t *Token) Verify(ctx context.Context) (*Claims, error) {
	t.once.Do(func() {
		t.claims, t.err = t.verifier.verify(ctx, t.raw)
		if t.err != nil {
			t.verifier.logger.Debug("auth0 token rejected", "code", auth.TextCode(t.err))
		}
	})
	return t.claims, t.err
}

// Valid reports whether the token verified.
func (t *Token) Valid(ctx context.Context) bool {
	_, err := t.Verify(ctx)
	return err == nil
}

// IsBot reports whether the verified token belongs to a machine client.
func (t *Token) IsBot(ctx context.Context) bool {
	claims, err := t.Verify(ctx)
	return err == nil && claims.IsBot()
}

// Principal returns the caller, or nil when the token did not verify.
func (t *Token) Principal(ctx context.Context) Principal {
	claims, err := t.Verify(ctx)
	if err != nil {
		return nil
	}
	return claims.Principal()
}

// PrincipalID returns the Auth0 user id, or "" for an invalid token.
func (t *Token) PrincipalID(ctx context.Context) string {
	if p := t.Principal(ctx); p != nil {
		return p.ID()
	}
	return ""
}

func (t *Token) Provider(ctx context.Context) string {
	if p := t.Principal(ctx); p != nil {
		return p.Provider()
	}
	return ""
}

func (t *Token) LocalID(ctx context.Context) string {
	if p := t.Principal(ctx); p != nil {
		return p.LocalID()
	}
	return ""
}

// Scopes returns the token's own scopes, empty when invalid or absent.
func (t *Token) Scopes(ctx context.Context) []string {
	claims, err := t.Verify(ctx)
	if err != nil {
		return []string{}
	}
	scopes := claims.Scopes()
	if scopes == nil {
		return []string{}
	}
	return scopes
}
