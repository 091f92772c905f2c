package auth0

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	auth "github.com/goliatone/go-auth0-bearer"
)

// MockBinder implements auth.IdentityBinder
type MockBinder struct {
	mock.Mock
}

func (m *MockBinder) FindOrCreate(ctx context.Context, provider, uid, email string) (auth.Identity, error) {
	args := m.Called(ctx, provider, uid, email)
	identity, _ := args.Get(0).(auth.Identity)
	return identity, args.Error(1)
}

func (m *MockBinder) AttachScopes(ctx context.Context, identity auth.Identity, scopes []string) error {
	args := m.Called(ctx, identity, scopes)
	return args.Error(0)
}

// MockPermissionSource implements PermissionSource
type MockPermissionSource struct {
	mock.Mock
}

func (m *MockPermissionSource) Resolve(ctx context.Context, principal Principal, email string) ([]string, error) {
	args := m.Called(ctx, principal, email)
	scopes, _ := args.Get(0).([]string)
	return scopes, args.Error(1)
}

func testIdentity(provider, uid, email string) auth.Identity {
	return auth.NewIdentityFromUser(&auth.User{
		ID:       uuid.New(),
		Provider: provider,
		UID:      uid,
		Email:    email,
	})
}
