package bearer

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-router"

	auth "github.com/goliatone/go-auth0-bearer"
	"github.com/goliatone/go-auth0-bearer/provider/auth0"
)

const (
	DefaultContextKey  = "current_user"
	DefaultTokenLookup = "header:" + router.HeaderAuthorization
	DefaultAuthScheme  = "Bearer"
)

var (
	ErrTokenMissingOrMalformed = errors.New("missing or malformed bearer token")
	ErrForbidden               = errors.New("insufficient permissions")
)

// Authenticator turns a raw bearer token into an authenticated result.
// *auth0.Strategy satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth0.Result, error)
}

type Config struct {
	// Filter skips the middleware when it returns true.
	Filter func(router.Context) bool
	// SuccessHandler runs after a successful authentication. When nil the
	// wrapped handler runs.
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	Authenticator  Authenticator
	ContextKey     string
	// TokenLookup is a comma separated list of "<source>:<name>" pairs,
	// e.g. "header:Authorization,query:access_token,cookie:jwt".
	TokenLookup string
	AuthScheme  string
}

// New returns a router middleware that authenticates every request carrying
// a bearer token and exposes the identity and ability downstream.
func New(config Config) router.MiddlewareFunc {
	cfg := withDefaults(config)
	if cfg.Authenticator == nil {
		panic("bearer: Authenticator is required")
	}
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.Filter != nil && cfg.Filter(c) {
				return next(c)
			}

			raw, err := extractToken(c, extractors)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			result, err := cfg.Authenticator.Authenticate(c.Context(), raw)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			c.Locals(cfg.ContextKey, result)

			ctx := c.Context()
			if result.Identity != nil {
				ctx = auth.WithIdentity(ctx, result.Identity)
			}
			c.SetContext(auth.WithAbility(ctx, result.Ability))

			if cfg.SuccessHandler != nil {
				return cfg.SuccessHandler(c)
			}
			return next(c)
		}
	}
}

// RequireCan rejects requests whose ability does not grant action on
// resource with a 403. It must run after New.
func RequireCan(action string, resource any) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !auth.Can(c.Context(), action, resource) {
				return c.JSON(router.StatusForbidden, map[string]string{
					"error": ErrForbidden.Error(),
				})
			}
			return next(c)
		}
	}
}

// ResultFromContext returns the result stored by New under the default key.
func ResultFromContext(c router.Context) (*auth0.Result, bool) {
	return ResultFromContextKey(c, DefaultContextKey)
}

// ResultFromContextKey returns the result stored by New under key.
func ResultFromContextKey(c router.Context, key string) (*auth0.Result, bool) {
	result, ok := c.Locals(key).(*auth0.Result)
	return result, ok && result != nil
}

func withDefaults(cfg Config) Config {
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.TokenLookup == "" {
		cfg.TokenLookup = DefaultTokenLookup
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = DefaultAuthScheme
	}
	return cfg
}

// defaultErrorHandler answers every authentication failure with the same 401.
func defaultErrorHandler(c router.Context, err error) error {
	if errors.Is(err, ErrTokenMissingOrMalformed) {
		return c.JSON(router.StatusUnauthorized, map[string]string{
			"error": "Missing or malformed token",
		})
	}
	return c.JSON(router.StatusUnauthorized, map[string]string{
		"error": "Invalid or expired token",
	})
}

type TokenExtractor func(c router.Context) (string, error)

// GetExtractors parses a token lookup string into extractors, tried in order.
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := DefaultAuthScheme
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !ok {
			continue
		}
		source = strings.TrimSpace(source)
		name = strings.TrimSpace(name)

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

func extractToken(c router.Context, extractors []TokenExtractor) (string, error) {
	err := ErrTokenMissingOrMalformed
	for _, extractor := range extractors {
		var token string
		token, err = extractor(c)
		if token != "" && err == nil {
			return token, nil
		}
	}
	return "", err
}

// tokenFromHeader extracts the token following authScheme in header.
func tokenFromHeader(header string, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrTokenMissingOrMalformed
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l:]); token != "" {
				return token, nil
			}
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func tokenFromParam(param string) TokenExtractor {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
