package auth0

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// GrantTypeClientCredentials is the "gty" value Auth0 sets on machine to
// machine tokens.
const GrantTypeClientCredentials = "client-credentials"

// Claims are the verified claims of an Auth0 access token.
type Claims struct {
	jwt.RegisteredClaims
	Scope           string         `json:"scope,omitempty"`
	GrantType       string         `json:"gty,omitempty"`
	AuthorizedParty string         `json:"azp,omitempty"`
	Email           string         `json:"email,omitempty"`
	Raw             map[string]any `json:"-"`
}

// UnmarshalJSON captures both known and raw claims so namespaced custom
// claims stay reachable.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias Claims
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*c = Claims(decoded)
	c.Raw = raw
	return nil
}

// IsBot reports whether the token was issued through client credentials.
func (c *Claims) IsBot() bool {
	return c != nil && c.GrantType == GrantTypeClientCredentials
}

// Principal derives the caller from the claims.
func (c *Claims) Principal() Principal {
	if c == nil {
		return nil
	}
	if c.IsBot() {
		return Bot{ClientID: c.AuthorizedParty}
	}
	return Human{Subject: c.Subject}
}

// Scopes splits the space separated "scope" claim.
func (c *Claims) Scopes() []string {
	if c == nil {
		return nil
	}
	return strings.Fields(c.Scope)
}

// EmailFrom returns the email held in claim. The "email" claim falls back to
// the decoded field; other names are read from the raw claims.
func (c *Claims) EmailFrom(claim string) string {
	if c == nil {
		return ""
	}
	if claim == "" || claim == DefaultEmailClaim {
		if c.Email != "" {
			return c.Email
		}
	}
	if v, ok := c.Raw[claim].(string); ok {
		return v
	}
	return ""
}
