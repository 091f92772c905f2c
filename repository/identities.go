package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gorepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-auth0-bearer"
)

// IdentityBinder implements auth.IdentityBinder over a Bun "users" table
// keyed by (provider, uid).
type IdentityBinder struct {
	db     bun.IDB
	now    func() time.Time
	logger auth.Logger
}

// Option configures an IdentityBinder.
type Option func(*IdentityBinder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *IdentityBinder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) Option {
	return func(b *IdentityBinder) {
		b.logger = auth.EnsureLogger(logger)
	}
}

// NewIdentityBinder creates a binder.
func NewIdentityBinder(db bun.IDB, opts ...Option) *IdentityBinder {
	b := &IdentityBinder{
		db:     db,
		now:    time.Now,
		logger: auth.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// CreateSchema creates the users table and its (provider, uid) unique index.
func (b *IdentityBinder) CreateSchema(ctx context.Context) error {
	if _, err := b.db.NewCreateTable().
		Model((*auth.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	if _, err := b.db.NewCreateIndex().
		Model((*auth.User)(nil)).
		Index("users_provider_uid_idx").
		Column("provider", "uid").
		Unique().
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	return nil
}

// Find returns the user bound to provider and uid.
func (b *IdentityBinder) Find(ctx context.Context, provider, uid string) (*auth.User, error) {
	user := &auth.User{}
	err := b.db.NewSelect().
		Model(user).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.uid = ?", uid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, auth.WrapError(auth.ErrIdentityNotFound, err, map[string]any{
				"provider": provider,
				"uid":      uid,
			})
		}
		return nil, err
	}
	return user, nil
}

// FindOrCreate returns the user bound to provider and uid, creating it on
// first sight. A changed non-empty email is written back.
func (b *IdentityBinder) FindOrCreate(ctx context.Context, provider, uid, email string) (auth.Identity, error) {
	user, err := b.Find(ctx, provider, uid)
	switch {
	case err == nil:
		if email != "" && email != user.Email {
			if err := b.updateEmail(ctx, user, email); err != nil {
				return nil, err
			}
		}
		return auth.NewIdentityFromUser(user), nil
	case !auth.HasTextCode(err, auth.TextCodeIdentityNotFound):
		return nil, err
	}

	now := b.now().UTC()
	user = &auth.User{
		ID:        uuid.New(),
		Provider:  provider,
		UID:       uid,
		Email:     email,
		Scopes:    []string{},
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	// Two first requests may race to create the same identity; the loser
	// reads the winner's row.
	res, err := b.db.NewInsert().
		Model(user).
		On("CONFLICT (provider, uid) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		user, err = b.Find(ctx, provider, uid)
		if err != nil {
			return nil, err
		}
	} else {
		b.logger.Info("identity created", "provider", provider, "uid", uid)
	}

	return auth.NewIdentityFromUser(user), nil
}

// AttachScopes stores the last resolved scopes on the identity's record.
func (b *IdentityBinder) AttachScopes(ctx context.Context, identity auth.Identity, scopes []string) error {
	if identity == nil {
		return auth.ErrIdentityNotFound
	}
	if scopes == nil {
		scopes = []string{}
	}

	now := b.now().UTC()
	res, err := b.db.NewUpdate().
		Model((*auth.User)(nil)).
		Set("scopes = ?", scopesValue(scopes)).
		Set("scopes_at = ?", now).
		Set("updated_at = ?", now).
		Where("provider = ?", identity.Provider()).
		Where("uid = ?", identity.UID()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("attach scopes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.WrapError(auth.ErrIdentityNotFound, nil, map[string]any{
			"provider": identity.Provider(),
			"uid":      identity.UID(),
		})
	}

	if adapter, ok := identity.(auth.UserIdentity); ok && adapter.User() != nil {
		adapter.User().Scopes = append([]string{}, scopes...)
		adapter.User().ScopesAt = &now
	}
	return nil
}

func (b *IdentityBinder) updateEmail(ctx context.Context, user *auth.User, email string) error {
	now := b.now().UTC()
	user.Email = email
	user.UpdatedAt = &now

	_, err := b.db.NewUpdate().
		Model(user).
		Column("email", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update identity email: %w", err)
	}
	return nil
}

// scopesValue encodes scopes the way Bun stores slice columns.
func scopesValue(scopes []string) string {
	b, err := json.Marshal(scopes)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func isNotFound(err error) bool {
	return gorepo.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}
