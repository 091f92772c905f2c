package auth0

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth0-bearer"
	"github.com/goliatone/go-auth0-bearer/scopecache"
)

type strategyFixture struct {
	server *jwksServer
	cfg    Config
	binder *MockBinder
	source *MockPermissionSource
	cache  *scopecache.Cache
}

func newStrategyFixture(t *testing.T, mutate func(*Config)) (*Strategy, *strategyFixture) {
	t.Helper()

	key := sharedTestKey(t)
	server := newJWKSServer(t, newTestJWKS(t, key, testKid))
	cfg := testConfig(server.issuer())
	if mutate != nil {
		mutate(&cfg)
	}

	fx := &strategyFixture{
		server: server,
		cfg:    cfg,
		binder: &MockBinder{},
		source: &MockPermissionSource{},
		cache:  scopecache.New(scopecache.NewMemoryStore(), scopecache.WithTTL(time.Minute)),
	}

	strategy, err := NewStrategy(newTestVerifier(t, cfg), fx.source, fx.binder, WithScopeCache(fx.cache))
	require.NoError(t, err)
	return strategy, fx
}

func (fx *strategyFixture) humanToken(t *testing.T, mutate func(map[string]any)) string {
	claims := humanClaims(fx.server.issuer())
	if mutate != nil {
		mutate(claims)
	}
	return signToken(t, sharedTestKey(t), testKid, claims)
}

func TestStrategy_AuthenticatesHumanAndCachesScopes(t *testing.T) {
	strategy, fx := newStrategyFixture(t, nil)
	ctx := context.Background()
	identity := testIdentity("auth0", "user-123", "user@example.com")
	scopes := []string{"destroy:some_resource_types", "read:posts"}

	fx.binder.On("FindOrCreate", mock.Anything, "auth0", "user-123", "user@example.com").Return(identity, nil).Twice()
	fx.source.On("Resolve", mock.Anything, Human{Subject: "auth0|user-123"}, "user@example.com").Return(scopes, nil).Once()
	fx.binder.On("AttachScopes", mock.Anything, identity, scopes).Return(nil).Twice()

	for i := 0; i < 2; i++ {
		result, err := strategy.Authenticate(ctx, fx.humanToken(t, nil))
		require.NoError(t, err)

		assert.Equal(t, identity, result.Identity)
		assert.Equal(t, Human{Subject: "auth0|user-123"}, result.Principal)
		assert.NoError(t, result.AuthorizationErr)
		assert.True(t, result.Ability.Can("read", "post"))
		assert.False(t, result.Ability.Can("write", "post"))
	}

	cached, ok := fx.cache.Get(ctx, "auth0:auth0|user-123")
	require.True(t, ok)
	assert.Equal(t, scopes, cached)

	fx.binder.AssertExpectations(t)
	fx.source.AssertExpectations(t)
}

func TestStrategy_AuthenticatesBot(t *testing.T) {
	strategy, fx := newStrategyFixture(t, func(cfg *Config) {
		cfg.EmailDomainsAllowlist = []string{"example.com"}
	})
	identity := testIdentity("auth0", "client-abc", "")

	fx.binder.On("FindOrCreate", mock.Anything, "auth0", "client-abc", "").Return(identity, nil)
	fx.source.On("Resolve", mock.Anything, Bot{ClientID: "client-abc"}, "").Return([]string{"read:posts"}, nil)
	fx.binder.On("AttachScopes", mock.Anything, identity, []string{"read:posts"}).Return(nil)

	token := signToken(t, sharedTestKey(t), testKid, botClaims(fx.server.issuer()))
	result, err := strategy.Authenticate(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "auth0|client-abc", result.Principal.ID())
	assert.True(t, result.Ability.Can("read", "posts"))
	assert.Equal(t, "auth0:auth0|client-abc", strategy.CacheKey(result.Principal))
}

func TestStrategy_VerificationFailuresAreUniform(t *testing.T) {
	strategy, fx := newStrategyFixture(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.jwt"},
		{name: "unknown kid", token: signToken(t, sharedTestKey(t), "unknown", humanClaims(fx.server.issuer()))},
		{name: "wrong audience", token: fx.humanToken(t, func(c map[string]any) { c["aud"] = "https://other.test" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := strategy.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, auth.TextCodeTokenInvalid, auth.TextCode(err))
			assert.True(t, auth.IsTokenInvalid(err))
		})
	}

	fx.binder.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	fx.source.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestStrategy_PermissionFailureFailsClosed(t *testing.T) {
	strategy, fx := newStrategyFixture(t, nil)
	ctx := context.Background()
	identity := testIdentity("auth0", "user-123", "user@example.com")
	fetchErr := auth.WrapError(auth.ErrPermissionFetch, errors.New("status 500"), nil)

	fx.binder.On("FindOrCreate", mock.Anything, "auth0", "user-123", "user@example.com").Return(identity, nil)
	fx.source.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return(nil, fetchErr)

	result, err := strategy.Authenticate(ctx, fx.humanToken(t, nil))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, identity, result.Identity)
	assert.True(t, result.Ability.Empty())
	assert.True(t, result.Ability.Cannot("read", "post"))
	assert.True(t, auth.IsPermissionFetchError(result.AuthorizationErr))

	_, cached := fx.cache.Get(ctx, "auth0:auth0|user-123")
	assert.False(t, cached)
	fx.binder.AssertNotCalled(t, "AttachScopes", mock.Anything, mock.Anything, mock.Anything)
}

func TestStrategy_AttachFailureDoesNotFailAuthentication(t *testing.T) {
	strategy, fx := newStrategyFixture(t, nil)
	identity := testIdentity("auth0", "user-123", "user@example.com")

	fx.binder.On("FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(identity, nil)
	fx.source.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return([]string{"read:posts"}, nil)
	fx.binder.On("AttachScopes", mock.Anything, identity, []string{"read:posts"}).Return(errors.New("db down"))

	result, err := strategy.Authenticate(context.Background(), fx.humanToken(t, nil))
	require.NoError(t, err)
	assert.True(t, result.Ability.Can("read", "post"))
}

func TestStrategy_BinderFailureFailsAuthentication(t *testing.T) {
	strategy, fx := newStrategyFixture(t, nil)
	boom := errors.New("db down")

	fx.binder.On("FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	result, err := strategy.Authenticate(context.Background(), fx.humanToken(t, nil))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, result)
	fx.source.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestStrategy_EmailDomainPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allow   []string
		block   []string
		email   string
		allowed bool
	}{
		{name: "no lists", email: "user@anything.test", allowed: true},
		{name: "allowlisted", allow: []string{"example.com"}, email: "user@Example.com", allowed: true},
		{name: "not allowlisted", allow: []string{"example.com"}, email: "user@other.test", allowed: false},
		{name: "missing email with allowlist", allow: []string{"example.com"}, email: "", allowed: false},
		{name: "blocklisted", block: []string{"spam.test"}, email: "user@spam.test", allowed: false},
		{name: "not blocklisted", block: []string{"spam.test"}, email: "user@example.com", allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, fx := newStrategyFixture(t, func(cfg *Config) {
				cfg.EmailDomainsAllowlist = tt.allow
				cfg.EmailDomainsBlocklist = tt.block
			})
			identity := testIdentity("auth0", "user-123", tt.email)
			fx.binder.On("FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(identity, nil)
			fx.source.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return([]string{}, nil)
			fx.binder.On("AttachScopes", mock.Anything, mock.Anything, mock.Anything).Return(nil)

			token := fx.humanToken(t, func(c map[string]any) {
				if tt.email == "" {
					delete(c, "email")
					return
				}
				c["email"] = tt.email
			})

			_, err := strategy.Authenticate(context.Background(), token)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, auth.TextCodeEmailDomainRejected, auth.TextCode(err))
			fx.binder.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestStrategy_CustomEmailClaim(t *testing.T) {
	strategy, fx := newStrategyFixture(t, func(cfg *Config) {
		cfg.EmailClaim = "https://example.com/email"
	})
	identity := testIdentity("auth0", "user-123", "namespaced@example.com")

	fx.binder.On("FindOrCreate", mock.Anything, "auth0", "user-123", "namespaced@example.com").Return(identity, nil)
	fx.source.On("Resolve", mock.Anything, mock.Anything, "namespaced@example.com").Return([]string{}, nil)
	fx.binder.On("AttachScopes", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	token := fx.humanToken(t, func(c map[string]any) {
		c["https://example.com/email"] = "namespaced@example.com"
	})
	_, err := strategy.Authenticate(context.Background(), token)
	require.NoError(t, err)
	fx.binder.AssertExpectations(t)
}

func TestStrategy_InvalidateDropsCachedScopes(t *testing.T) {
	strategy, fx := newStrategyFixture(t, nil)
	ctx := context.Background()
	principal := Human{Subject: "auth0|user-123"}

	require.NoError(t, fx.cache.Put(ctx, strategy.CacheKey(principal), []string{"read:posts"}))
	require.NoError(t, strategy.Invalidate(ctx, principal))

	_, ok := fx.cache.Get(ctx, strategy.CacheKey(principal))
	assert.False(t, ok)
}

func TestStrategy_Valid(t *testing.T) {
	strategy, _ := newStrategyFixture(t, nil)
	assert.True(t, strategy.Valid("abc"))
	assert.False(t, strategy.Valid("  "))
}

func TestNewStrategy_RequiresCollaborators(t *testing.T) {
	verifier := newTestVerifier(t, testConfig("https://tenant.test/"))

	_, err := NewStrategy(nil, &MockPermissionSource{}, &MockBinder{})
	assert.Error(t, err)
	_, err = NewStrategy(verifier, nil, &MockBinder{})
	assert.Error(t, err)
	_, err = NewStrategy(verifier, &MockPermissionSource{}, nil)
	assert.Error(t, err)
}

func TestNewStrategy_DefaultsToNamedLogger(t *testing.T) {
	verifier := newTestVerifier(t, testConfig("https://tenant.test/"))

	strategy, err := NewStrategy(verifier, &MockPermissionSource{}, &MockBinder{})
	require.NoError(t, err)
	require.NotNil(t, strategy.logger)
	assert.NotEqual(t, auth.Logger(auth.NopLogger{}), strategy.logger)
	require.NotNil(t, strategy.cache)

	silent, err := NewStrategy(verifier, &MockPermissionSource{}, &MockBinder{}, WithStrategyLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, auth.Logger(auth.NopLogger{}), silent.logger)
}

func TestStrategy_AcceptsIdentityBinderFunc(t *testing.T) {
	key := sharedTestKey(t)
	server := newJWKSServer(t, newTestJWKS(t, key, testKid))
	cfg := testConfig(server.issuer())

	source := &MockPermissionSource{}
	source.On("Resolve", mock.Anything, Human{Subject: "auth0|user-123"}, "user@example.com").Return([]string{"read:posts"}, nil)

	var calls []string
	binder := auth.IdentityBinderFunc(func(_ context.Context, provider, uid, email string) (auth.Identity, error) {
		calls = append(calls, provider+"|"+uid+"|"+email)
		return testIdentity(provider, uid, email), nil
	})

	strategy, err := NewStrategy(newTestVerifier(t, cfg), source, binder, WithStrategyLogger(nil))
	require.NoError(t, err)

	result, err := strategy.Authenticate(context.Background(), signToken(t, key, testKid, humanClaims(server.issuer())))
	require.NoError(t, err)

	assert.Equal(t, []string{"auth0|user-123|user@example.com"}, calls)
	assert.Equal(t, "user-123", result.Identity.UID())
	assert.True(t, result.Ability.Can("read", "post"))
	assert.NoError(t, result.AuthorizationErr)
	source.AssertExpectations(t)
}

func TestStrategy_NilIdentityBinderFuncFailsAuthentication(t *testing.T) {
	key := sharedTestKey(t)
	server := newJWKSServer(t, newTestJWKS(t, key, testKid))
	cfg := testConfig(server.issuer())
	source := &MockPermissionSource{}

	var binder auth.IdentityBinderFunc
	strategy, err := NewStrategy(newTestVerifier(t, cfg), source, binder, WithStrategyLogger(nil))
	require.NoError(t, err)

	result, err := strategy.Authenticate(context.Background(), signToken(t, key, testKid, humanClaims(server.issuer())))
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
	assert.Nil(t, result)
	source.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}
