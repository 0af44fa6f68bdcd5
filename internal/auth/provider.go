// Package auth verifies credentials for the session managers.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is returned on any identity or secret mismatch.
// It never says which of the two was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider verifies an identity/secret pair and resolves its role.
type Provider interface {
	Verify(ctx context.Context, identity, secret string) (role string, err error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, identity, secret string) (string, error)

func (f ProviderFunc) Verify(ctx context.Context, identity, secret string) (string, error) {
	return f(ctx, identity, secret)
}

// Chain tries providers in order and returns the first match.
type Chain []Provider

func (c Chain) Verify(ctx context.Context, identity, secret string) (string, error) {
	for _, p := range c {
		role, err := p.Verify(ctx, identity, secret)
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			return "", err
		}
	}
	return "", ErrInvalidCredentials
}
