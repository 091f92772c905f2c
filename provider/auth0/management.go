package auth0

import (
	"context"
	"fmt"
	"strings"

	"github.com/auth0/go-auth0/management"
)

// ClientGrant is a machine to machine authorization for one API.
type ClientGrant struct {
	ClientID string
	Audience string
	Scopes   []string
}

// ManagedUser is a tenant user as returned by the users-by-email lookup.
type ManagedUser struct {
	ID         string
	Email      string
	Identities []ManagedIdentity
}

// ManagedIdentity is one linked login of a ManagedUser.
type ManagedIdentity struct {
	Provider   string
	UserID     string
	Connection string
}

// Permission is a user permission scoped to a resource server.
type Permission struct {
	Name                     string
	ResourceServerIdentifier string
}

// PermissionPage is one page of a user's permissions.
type PermissionPage struct {
	Permissions []Permission
	Start       int
	Limit       int
	Total       int
}

// ManagementAPI is the subset of the Auth0 management API used to resolve
// permissions.
type ManagementAPI interface {
	ClientGrants(ctx context.Context, clientID, audience string) ([]ClientGrant, error)
	UsersByEmail(ctx context.Context, email string) ([]ManagedUser, error)
	UserPermissions(ctx context.Context, userID string, page, perPage int) (PermissionPage, error)
}

// ManagementConfig configures the Auth0 management client.
type ManagementConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Client       *management.Management
}

// ManagementConfigFrom reads the management settings out of cfg.
func ManagementConfigFrom(cfg Config) ManagementConfig {
	return ManagementConfig{
		Domain:       cfg.ManagementDomain(),
		ClientID:     cfg.ManagementClientID,
		ClientSecret: cfg.ManagementClientSecret,
	}
}

// ManagementClient implements ManagementAPI over go-auth0.
type ManagementClient struct {
	client *management.Management
}

// NewManagementClient creates a client authenticated with client credentials.
// A preconfigured cfg.Client takes precedence.
func NewManagementClient(ctx context.Context, cfg ManagementConfig, opts ...management.Option) (*ManagementClient, error) {
	if cfg.Client != nil {
		return &ManagementClient{client: cfg.Client}, nil
	}

	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		return nil, fmt.Errorf("auth0 management: domain is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("auth0 management: client credentials are required")
	}

	options := append([]management.Option{
		management.WithClientCredentials(ctx, cfg.ClientID, cfg.ClientSecret),
	}, opts...)

	client, err := management.New(domain, options...)
	if err != nil {
		return nil, fmt.Errorf("auth0 management: failed to create client: %w", err)
	}

	return &ManagementClient{client: client}, nil
}

// ClientGrants lists the grants of clientID for audience.
func (m *ManagementClient) ClientGrants(ctx context.Context, clientID, audience string) ([]ClientGrant, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	list, err := m.client.ClientGrant.List(ctx,
		management.Parameter("client_id", clientID),
		management.Parameter("audience", audience),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0 management: list client grants: %w", err)
	}

	grants := make([]ClientGrant, 0, len(list.ClientGrants))
	for _, g := range list.ClientGrants {
		if g == nil {
			continue
		}
		grant := ClientGrant{
			ClientID: g.GetClientID(),
			Audience: g.GetAudience(),
		}
		if g.Scope != nil {
			grant.Scopes = append(grant.Scopes, (*g.Scope)...)
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

// UsersByEmail looks up every user registered with email.
func (m *ManagementClient) UsersByEmail(ctx context.Context, email string) ([]ManagedUser, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	found, err := m.client.User.ListByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth0 management: list users by email: %w", err)
	}

	users := make([]ManagedUser, 0, len(found))
	for _, u := range found {
		if u == nil {
			continue
		}
		user := ManagedUser{ID: u.GetID(), Email: u.GetEmail()}
		for _, identity := range u.Identities {
			if identity == nil {
				continue
			}
			user.Identities = append(user.Identities, ManagedIdentity{
				Provider:   identity.GetProvider(),
				UserID:     identity.GetUserID(),
				Connection: identity.GetConnection(),
			})
		}
		users = append(users, user)
	}
	return users, nil
}

// UserPermissions returns one page of the permissions assigned to userID.
func (m *ManagementClient) UserPermissions(ctx context.Context, userID string, page, perPage int) (PermissionPage, error) {
	if err := m.ready(); err != nil {
		return PermissionPage{}, err
	}

	list, err := m.client.User.Permissions(ctx, userID,
		management.Page(page),
		management.PerPage(perPage),
		management.IncludeTotals(true),
	)
	if err != nil {
		return PermissionPage{}, fmt.Errorf("auth0 management: list user permissions: %w", err)
	}

	out := PermissionPage{
		Start:       list.Start,
		Limit:       list.Limit,
		Total:       list.Total,
		Permissions: make([]Permission, 0, len(list.Permissions)),
	}
	for _, p := range list.Permissions {
		if p == nil {
			continue
		}
		out.Permissions = append(out.Permissions, Permission{
			Name:                     p.GetName(),
			ResourceServerIdentifier: p.GetResourceServerIdentifier(),
		})
	}
	return out, nil
}

// RawClient exposes the underlying management client.
func (m *ManagementClient) RawClient() *management.Management {
	if m == nil {
		return nil
	}
	return m.client
}

func (m *ManagementClient) ready() error {
	if m == nil || m.client == nil {
		return fmt.Errorf("auth0 management: client not initialized")
	}
	return nil
}
