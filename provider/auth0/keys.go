package auth0

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"

	auth "github.com/goliatone/go-auth0-bearer"
)

const maxKeySetBytes = 1 << 20

// KeySet maps a key id to its public key.
type KeySet map[string]crypto.PublicKey

// KeyResolver fetches the signing keys published by the tenant.
type KeyResolver interface {
	ResolveKeys(ctx context.Context) (KeySet, error)
}

// KeyResolverFunc adapts a function into a KeyResolver.
type KeyResolverFunc func(ctx context.Context) (KeySet, error)

func (f KeyResolverFunc) ResolveKeys(ctx context.Context) (KeySet, error) {
	return f(ctx)
}

// HTTPKeyResolver downloads the key set on every call. Wrap it or use
// RefreshingKeyResolver when caching is wanted.
type HTTPKeyResolver struct {
	url     string
	client  *http.Client
	timeout time.Duration
	retry   RetryPolicy
	logger  auth.Logger
}

// HTTPKeyResolverOption configures an HTTPKeyResolver.
type HTTPKeyResolverOption func(*HTTPKeyResolver)

// WithHTTPClient sets the client used for key set requests.
func WithHTTPClient(client *http.Client) HTTPKeyResolverOption {
	return func(r *HTTPKeyResolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) HTTPKeyResolverOption {
	return func(r *HTTPKeyResolver) {
		r.retry = policy
	}
}

// WithKeyResolverLogger sets the logger.
func WithKeyResolverLogger(logger auth.Logger) HTTPKeyResolverOption {
	return func(r *HTTPKeyResolver) {
		r.logger = auth.EnsureLogger(logger)
	}
}

// NewHTTPKeyResolver creates a resolver for the tenant described by cfg.
func NewHTTPKeyResolver(cfg Config, opts ...HTTPKeyResolverOption) (*HTTPKeyResolver, error) {
	jwksURL := cfg.JWKSURL()
	if jwksURL == "" {
		return nil, fmt.Errorf("auth0: issuer or domain is required")
	}

	cfg = cfg.WithDefaults()
	r := &HTTPKeyResolver{
		url:     jwksURL,
		client:  http.DefaultClient,
		timeout: cfg.HTTPTimeout,
		retry:   DefaultRetryPolicy(),
		logger:  auth.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// URL returns the key set location.
func (r *HTTPKeyResolver) URL() string {
	return r.url
}

// ResolveKeys downloads and parses the key set. Transport failures, 5xx, and
// 429 responses are retried; parse failures are not.
func (r *HTTPKeyResolver) ResolveKeys(ctx context.Context) (KeySet, error) {
	body, attempts, err := withRetry(ctx, r.retry, r.fetch)
	if err != nil {
		r.logger.Warn("auth0 key set fetch failed", "url", r.url, "attempts", attempts, "error", err)
		return nil, auth.WrapError(auth.ErrKeySetFetch, err, map[string]any{
			"url":      r.url,
			"attempts": attempts,
		})
	}

	keys, err := ParseKeySet(body)
	if err != nil {
		r.logger.Warn("auth0 key set parse failed", "url", r.url, "error", err)
		return nil, err
	}
	r.logger.Debug("auth0 key set fetched", "url", r.url, "keys", len(keys))
	return keys, nil
}

func (r *HTTPKeyResolver) fetch(ctx context.Context) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ParseKeySet decodes a JWKS document whose keys carry an x5c certificate
// chain. The first certificate of each chain provides the public key.
func ParseKeySet(data []byte) (KeySet, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, auth.WrapError(auth.ErrKeySetParse, err, nil)
	}

	keys := make(KeySet, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}

		kid := key.KeyID()
		if kid == "" {
			return nil, auth.WrapError(auth.ErrKeySetParse, nil, map[string]any{
				"reason": "missing kid",
			})
		}

		chain := key.X509CertChain()
		if chain == nil || chain.Len() == 0 {
			return nil, auth.WrapError(auth.ErrKeySetParse, nil, map[string]any{
				"reason": "missing x5c",
				"kid":    kid,
			})
		}
		// x5c entries are standard base64, not base64url
		encoded, _ := chain.Get(0)
		der, err := base64.StdEncoding.DecodeString(string(encoded))
		if err != nil {
			return nil, auth.WrapError(auth.ErrKeySetParse, err, map[string]any{"kid": kid})
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, auth.WrapError(auth.ErrKeySetParse, err, map[string]any{"kid": kid})
		}
		keys[kid] = cert.PublicKey
	}
	return keys, nil
}
