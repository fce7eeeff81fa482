// Package identity resolves the authenticated user behind an operation.
package identity

import (
	"context"
	"errors"
)

// ErrNoSession is returned when no authenticated user can be resolved.
var ErrNoSession = errors.New("no authenticated session")

// User is the resolved identity of an authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Provider resolves the current user for an operation. Implementations
// return ErrNoSession when the context carries no authenticated identity.
type Provider interface {
	CurrentUser(ctx context.Context) (User, error)
}

// userKey is the context key for the authenticated user.
type userKey struct{}

// WithUser stores the authenticated user in the context. Authentication
// middleware calls this after validating a token.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom retrieves the authenticated user from the context.
func UserFrom(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey{}).(User)
	return user, ok
}

// ContextProvider resolves the user injected into the request context by
// the authentication middleware.
type ContextProvider struct{}

// CurrentUser returns the user stored in ctx.
func (ContextProvider) CurrentUser(ctx context.Context) (User, error) {
	user, ok := UserFrom(ctx)
	if !ok || user.ID == "" {
		return User{}, ErrNoSession
	}
	return user, nil
}

// StaticProvider always resolves the same user. Used in tests.
type StaticProvider struct {
	User User
	Err  error
}

// CurrentUser returns the configured user or error.
func (p StaticProvider) CurrentUser(context.Context) (User, error) {
	if p.Err != nil {
		return User{}, p.Err
	}
	if p.User.ID == "" {
		return User{}, ErrNoSession
	}
	return p.User, nil
}
