package auth0

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testKid      = "test-key"
	testAudience = "https://api.test"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// sharedTestKey avoids generating an RSA key per test.
func sharedTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, testKeyErr)
	return testKey
}

// newTestJWKS returns a key set document publishing key under kid with both
// an x5c certificate and the raw modulus/exponent.
func newTestJWKS(t *testing.T, key *rsa.PrivateKey, kid string) []byte {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "auth0-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		"x5c": []string{base64.StdEncoding.EncodeToString(der)},
	}

	data, err := json.Marshal(map[string]any{"keys": []map[string]any{jwk}})
	require.NoError(t, err)
	return data
}

type jwksServer struct {
	*httptest.Server
	hits     atomic.Int32
	mu       sync.Mutex
	statuses []int
	body     []byte
}

// newJWKSServer serves body at /.well-known/jwks.json. Each entry of
// statuses is used for one request before falling back to 200.
func newJWKSServer(t *testing.T, body []byte, statuses ...int) *jwksServer {
	t.Helper()

	s := &jwksServer{body: body, statuses: statuses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.hits.Add(1)

		s.mu.Lock()
		status := http.StatusOK
		if len(s.statuses) > 0 {
			status = s.statuses[0]
			s.statuses = s.statuses[1:]
		}
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(s.body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) issuer() string {
	return s.URL + "/"
}

func testConfig(issuer string) Config {
	cfg := DefaultConfig("", []string{testAudience})
	cfg.Issuer = issuer
	return cfg
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestVerifier(t *testing.T, cfg Config) *TokenVerifier {
	t.Helper()
	resolver, err := NewHTTPKeyResolver(cfg, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)
	verifier, err := NewTokenVerifier(cfg, resolver)
	require.NoError(t, err)
	return verifier
}

func humanClaims(issuer string) jwt.MapClaims {
	now := time.Now().UTC()
	return jwt.MapClaims{
		"iss":   issuer,
		"sub":   "auth0|user-123",
		"aud":   []string{testAudience},
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "openid read:posts",
		"email": "user@example.com",
	}
}

func botClaims(issuer string) jwt.MapClaims {
	now := time.Now().UTC()
	return jwt.MapClaims{
		"iss":   issuer,
		"sub":   "client-abc@clients",
		"aud":   testAudience,
		"azp":   "client-abc",
		"gty":   GrantTypeClientCredentials,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "read:posts write:posts",
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	return signTokenWith(t, jwt.SigningMethodRS256, key, kid, claims)
}

func signTokenWith(t *testing.T, method jwt.SigningMethod, key any, kid string, claims jwt.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}

	signed, err := token.SignedString(key)
	require.NoError(t, err)

	return signed
}
