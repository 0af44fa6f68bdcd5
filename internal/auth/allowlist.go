package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Roles recorded on a session. They are displayed, not enforced.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Credential is one allowlist entry.
type Credential struct {
	Identity string
	Secret   string
	Role     string
}

// Allowlist is a fixed identity/secret/role table kept in memory.
// It is a stand-in credential check for demos, not a security boundary.
type Allowlist struct {
	entries map[string]Credential
}

// DefaultCredentials are the demo accounts shipped with the dashboard.
var DefaultCredentials = []Credential{
	{Identity: "admin@app.com", Secret: "admin123", Role: RoleAdmin},
	{Identity: "user@app.com", Secret: "user123", Role: RoleUser},
}

// NewAllowlist builds an allowlist; identities compare case-insensitively.
func NewAllowlist(creds ...Credential) *Allowlist {
	a := &Allowlist{entries: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		a.entries[normalizeIdentity(c.Identity)] = c
	}
	return a
}

// ParseAllowlist parses "identity:secret:role" entries. An empty list yields
// DefaultCredentials.
func ParseAllowlist(specs []string) (*Allowlist, error) {
	if len(specs) == 0 {
		return NewAllowlist(DefaultCredentials...), nil
	}
	creds := make([]Credential, 0, len(specs))
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// the identity may not contain ':'; the secret may
		identity, rest, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("credential %q: want identity:secret:role", s)
		}
		i := strings.LastIndex(rest, ":")
		if i <= 0 || i == len(rest)-1 || identity == "" {
			return nil, fmt.Errorf("credential for %q: want identity:secret:role", identity)
		}
		creds = append(creds, Credential{Identity: identity, Secret: rest[:i], Role: rest[i+1:]})
	}
	return NewAllowlist(creds...), nil
}

// Verify implements Provider.
func (a *Allowlist) Verify(_ context.Context, identity, secret string) (string, error) {
	c, ok := a.entries[normalizeIdentity(identity)]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) != 1 {
		return "", ErrInvalidCredentials
	}
	return c.Role, nil
}

// Len returns the number of entries.
func (a *Allowlist) Len() int { return len(a.entries) }

func normalizeIdentity(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
