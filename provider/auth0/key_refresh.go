package auth0

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	auth "github.com/goliatone/go-auth0-bearer"
)

// RefreshingKeyResolver keeps the key set in memory and refreshes it in the
// background. Use it in place of HTTPKeyResolver when every verification
// hitting the network is too expensive.
type RefreshingKeyResolver struct {
	jwks   *keyfunc.JWKS
	url    string
	logger auth.Logger
}

// RefreshOptions tunes the background refresh.
type RefreshOptions struct {
	Client           *http.Client
	RefreshInterval  time.Duration
	RefreshRateLimit time.Duration
	RefreshTimeout   time.Duration
	Logger           auth.Logger
}

// NewRefreshingKeyResolver fetches the key set once and starts a background
// refresh bound to ctx. Call Close to stop it early.
func NewRefreshingKeyResolver(ctx context.Context, cfg Config, opts RefreshOptions) (*RefreshingKeyResolver, error) {
	jwksURL := cfg.JWKSURL()
	if jwksURL == "" {
		return nil, fmt.Errorf("auth0: issuer or domain is required")
	}

	logger := auth.EnsureLogger(opts.Logger)
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	if opts.RefreshRateLimit <= 0 {
		opts.RefreshRateLimit = 5 * time.Minute
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = cfg.WithDefaults().HTTPTimeout
	}

	kfOpts := keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			logger.Error("auth0 key set refresh failed", "url", jwksURL, "error", err)
		},
		RefreshInterval:   opts.RefreshInterval,
		RefreshRateLimit:  opts.RefreshRateLimit,
		RefreshTimeout:    opts.RefreshTimeout,
		RefreshUnknownKID: true,
	}
	if opts.Client != nil {
		kfOpts.Client = opts.Client
	}

	jwks, err := keyfunc.Get(jwksURL, kfOpts)
	if err != nil {
		return nil, auth.WrapError(auth.ErrKeySetFetch, err, map[string]any{"url": jwksURL})
	}

	return &RefreshingKeyResolver{jwks: jwks, url: jwksURL, logger: logger}, nil
}

// ResolveKeys returns the keys held in memory.
func (r *RefreshingKeyResolver) ResolveKeys(ctx context.Context) (KeySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, auth.WrapError(auth.ErrKeySetFetch, err, map[string]any{"url": r.url})
	}

	raw := r.jwks.ReadOnlyKeys()
	keys := make(KeySet, len(raw))
	for kid, key := range raw {
		keys[kid] = key
	}
	return keys, nil
}

// Close stops the background refresh.
func (r *RefreshingKeyResolver) Close() {
	r.jwks.EndBackground()
}
