package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the local record bound to an Auth0 principal. Provider and UID are
// the two halves of the principal id (e.g. "auth0" and "64f1...").
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Provider      string     `bun:"provider,notnull" json:"provider,omitempty"`
	UID           string     `bun:"uid,notnull" json:"uid,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	Scopes        []string   `bun:"scopes" json:"scopes,omitempty"`
	ScopesAt      *time.Time `bun:"scopes_at,nullzero" json:"scopes_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// PrincipalID joins provider and uid back into the Auth0 user id.
func (u *User) PrincipalID() string {
	if u == nil {
		return ""
	}
	if u.Provider == "" {
		return u.UID
	}
	return u.Provider + "|" + u.UID
}
