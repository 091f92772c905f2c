package auth0

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joeshaw/envdecode"
)

const (
	DefaultAlgorithm      = "RS256"
	DefaultCacheExpiresIn = 15 * time.Minute
	DefaultCacheNamespace = "auth0"
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultEmailClaim     = "email"
)

// supportedAlgorithms lists the asymmetric algorithms a JWKS certificate can
// verify. Symmetric algorithms and "none" are never accepted.
var supportedAlgorithms = []any{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
}

// Config holds the Auth0 tenant settings. Build it once at startup and pass
// it by reference to the components that need it.
type Config struct {
	// Domain is the Auth0 tenant domain (e.g., "example.us.auth0.com").
	Domain string `env:"AUTH0_DOMAIN"`

	// Issuer overrides the default issuer URL (optional).
	// Default: "https://{Domain}/".
	Issuer string `env:"AUTH0_ISSUER"`

	// Audience is the API identifier(s) to validate against.
	Audience []string `env:"AUTH0_AUDIENCE"`

	// Algorithms accepted for signature verification. Default: RS256.
	Algorithms []string `env:"AUTH0_ALGORITHMS"`

	ManagementClientID     string `env:"AUTH0_MANAGEMENT_CLIENT_ID"`
	ManagementClientSecret string `env:"AUTH0_MANAGEMENT_CLIENT_SECRET"`

	// CacheExpiresIn is how long resolved permissions stay cached.
	// Default: 15 minutes.
	CacheExpiresIn time.Duration `env:"AUTH0_CACHE_EXPIRES_IN"`

	// CacheNamespace prefixes every scope cache key. Default: "auth0".
	CacheNamespace string `env:"AUTH0_CACHE_NAMESPACE"`

	EmailDomainsAllowlist []string `env:"AUTH0_EMAIL_DOMAINS_ALLOWLIST"`
	EmailDomainsBlocklist []string `env:"AUTH0_EMAIL_DOMAINS_BLOCKLIST"`

	// EmailClaim names the claim carrying the caller email. Auth0 access
	// tokens usually need a namespaced custom claim. Default: "email".
	EmailClaim string `env:"AUTH0_EMAIL_CLAIM"`

	// Leeway tolerated on exp/nbf/iat checks.
	Leeway time.Duration `env:"AUTH0_LEEWAY"`

	// HTTPTimeout bounds each key set request. Default: 10 seconds.
	HTTPTimeout time.Duration `env:"AUTH0_HTTP_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(domain string, audience []string) Config {
	return Config{
		Domain:         domain,
		Audience:       audience,
		Algorithms:     []string{DefaultAlgorithm},
		CacheExpiresIn: DefaultCacheExpiresIn,
		CacheNamespace: DefaultCacheNamespace,
		EmailClaim:     DefaultEmailClaim,
		HTTPTimeout:    DefaultHTTPTimeout,
	}
}

// ConfigFromEnv decodes AUTH0_* environment variables on top of the defaults.
// List values are separated by ";".
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("auth0: decode env: %w", err)
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// WithDefaults fills zero values with their defaults.
func (c Config) WithDefaults() Config {
	if len(c.Algorithms) == 0 {
		c.Algorithms = []string{DefaultAlgorithm}
	}
	if c.CacheExpiresIn <= 0 {
		c.CacheExpiresIn = DefaultCacheExpiresIn
	}
	if c.CacheNamespace == "" {
		c.CacheNamespace = DefaultCacheNamespace
	}
	if c.EmailClaim == "" {
		c.EmailClaim = DefaultEmailClaim
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Domain, validation.By(c.requireDomainOrIssuer)),
		validation.Field(&c.Issuer, validation.By(validIssuer)),
		validation.Field(&c.Audience, validation.Required, validation.By(noBlankEntries)),
		validation.Field(&c.Algorithms, validation.By(supportedAlgorithmList)),
		validation.Field(&c.Leeway, validation.Min(time.Duration(0))),
	)
}

func (c Config) requireDomainOrIssuer(value any) error {
	domain, _ := value.(string)
	if strings.TrimSpace(domain) == "" && strings.TrimSpace(c.Issuer) == "" {
		return errors.New("cannot be blank when issuer is not set")
	}
	return nil
}

func validIssuer(value any) error {
	issuer, _ := value.(string)
	if issuer == "" {
		return nil
	}
	u, err := url.Parse(issuer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

func noBlankEntries(value any) error {
	values, _ := value.([]string)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return errors.New("cannot contain blank entries")
		}
	}
	return nil
}

func supportedAlgorithmList(value any) error {
	algs, _ := value.([]string)
	for _, alg := range algs {
		if err := validation.Validate(alg, validation.In(supportedAlgorithms...)); err != nil {
			return fmt.Errorf("unsupported algorithm %q", alg)
		}
	}
	return nil
}

// IssuerURL is the expected "iss" claim, always ending with "/".
func (c Config) IssuerURL() string {
	if c.Issuer != "" {
		return normalizeIssuer(c.Issuer)
	}

	domain := strings.TrimSpace(c.Domain)
	if domain == "" {
		return ""
	}

	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return normalizeIssuer(domain)
	}

	return fmt.Sprintf("https://%s/", strings.TrimSuffix(domain, "/"))
}

// JWKSURL is where the tenant publishes its signing keys.
func (c Config) JWKSURL() string {
	issuer := c.IssuerURL()
	if issuer == "" {
		return ""
	}
	return issuer + ".well-known/jwks.json"
}

// ManagementDomain is the host used by the management API client.
func (c Config) ManagementDomain() string {
	domain := strings.TrimSpace(c.Domain)
	if domain == "" {
		if u, err := url.Parse(c.IssuerURL()); err == nil {
			return u.Host
		}
	}
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}

func (c Config) hasAudience(aud string) bool {
	for _, a := range c.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return issuer
	}
	if strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}
