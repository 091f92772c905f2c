package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the module. Messages take
// key/value pairs, which makes any glog.Logger a valid implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity is a locally persisted user bound to an Auth0 principal.
type Identity interface {
	ID() string
	Provider() string
	UID() string
	Email() string
	Scopes() []string
}

// IdentityBinder maps verified principals to local user records. Persistence
// is owned by the host application; the strategy only calls through this
// contract.
type IdentityBinder interface {
	FindOrCreate(ctx context.Context, provider, uid, email string) (Identity, error)
	AttachScopes(ctx context.Context, identity Identity, scopes []string) error
}

// IdentityBinderFunc adapts a function into the FindOrCreate half of an
// IdentityBinder that does not persist scopes.
type IdentityBinderFunc func(ctx context.Context, provider, uid, email string) (Identity, error)

// FindOrCreate satisfies IdentityBinder.
func (f IdentityBinderFunc) FindOrCreate(ctx context.Context, provider, uid, email string) (Identity, error) {
	if f == nil {
		return nil, ErrIdentityNotFound
	}
	return f(ctx, provider, uid, email)
}

// AttachScopes satisfies IdentityBinder.
func (f IdentityBinderFunc) AttachScopes(context.Context, Identity, []string) error {
	return nil
}

// DefaultLogger returns a named pretty glog logger.
func DefaultLogger(name string) Logger {
	if name == "" {
		name = "auth"
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName(name),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	).GetLogger(name)
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// EnsureLogger returns logger, or a NopLogger when logger is nil.
func EnsureLogger(logger Logger) Logger {
	if logger == nil {
		return NopLogger{}
	}
	return logger
}
