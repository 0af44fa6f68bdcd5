// Package session keeps the logged-in state of a browser profile.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/events"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/metrics"
	"github.com/Axmae/ambulance-management/internal/model"
)

// KeySet names the three profile keys a session is persisted under.
type KeySet struct {
	Scope    string
	LoggedIn string
	Identity string
	Role     string
}

var (
	// AdminKeys are used by the admin dashboard.
	AdminKeys = KeySet{Scope: "admin", LoggedIn: kvstore.KeyAdminLoggedIn, Identity: kvstore.KeyAdminEmail, Role: kvstore.KeyAdminRole}
	// PortalKeys are used by the client portal.
	PortalKeys = KeySet{Scope: "portal", LoggedIn: kvstore.KeyPortalLoggedIn, Identity: kvstore.KeyPortalEmail, Role: kvstore.KeyPortalRole}
)

const loggedInValue = "true"

// Manager authenticates against a provider and persists the result.
type Manager struct {
	kv       kvstore.Store
	keys     KeySet
	provider auth.Provider
	log      zerolog.Logger
	bus      *events.Bus[events.SessionEvent]
}

// New returns a manager over a profile-scoped container.
func New(kv kvstore.Store, keys KeySet, provider auth.Provider, log zerolog.Logger) *Manager {
	return &Manager{
		kv:       kv,
		keys:     keys,
		provider: provider,
		log:      log.With().Str("session", keys.Scope).Logger(),
		bus:      events.NewBus[events.SessionEvent](),
	}
}

// Subscribe registers fn for login and logout notifications.
func (m *Manager) Subscribe(fn func(events.SessionEvent)) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// Authenticate verifies the credentials and, on success, persists the session.
// A mismatch returns auth.ErrInvalidCredentials and changes nothing.
func (m *Manager) Authenticate(ctx context.Context, identity, secret string) (model.Session, error) {
	role, err := m.provider.Verify(ctx, identity, secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.AuthAttempts.WithLabelValues(m.keys.Scope, "rejected").Inc()
			m.log.Info().Msg("login rejected")
			return model.Session{}, auth.ErrInvalidCredentials
		}
		metrics.AuthAttempts.WithLabelValues(m.keys.Scope, "error").Inc()
		return model.Session{}, fmt.Errorf("verify credentials: %w", err)
	}

	s := model.Session{LoggedIn: true, Identity: identity, Role: role}
	var written []string
	for _, kv := range [][2]string{
		{m.keys.Identity, s.Identity},
		{m.keys.Role, s.Role},
		{m.keys.LoggedIn, loggedInValue},
	} {
		if err := m.kv.Put(ctx, kv[0], []byte(kv[1])); err != nil {
			m.rollback(ctx, written)
			metrics.AuthAttempts.WithLabelValues(m.keys.Scope, "error").Inc()
			return model.Session{}, fmt.Errorf("persist session: %w", err)
		}
		written = append(written, kv[0])
	}
	metrics.AuthAttempts.WithLabelValues(m.keys.Scope, "accepted").Inc()
	m.log.Info().Str("identity", identity).Str("role", role).Msg("login succeeded")
	m.bus.Publish(events.SessionEvent{Kind: events.LoginSucceeded, Scope: m.keys.Scope, Identity: identity, Role: role})
	return s, nil
}

// rollback deletes the keys of a half-persisted login. A missing key reads
// as logged out, so a previous session is not left pointing at the new
// identity.
func (m *Manager) rollback(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := m.kv.Delete(ctx, key); err != nil {
			m.log.Error().Err(err).Str("key", key).Msg("session rollback failed")
		}
	}
}

// Current rebuilds the session from the persisted keys. LoggedIn is false when
// any key is missing.
func (m *Manager) Current(ctx context.Context) (model.Session, error) {
	vals := make([]string, 3)
	for i, key := range []string{m.keys.LoggedIn, m.keys.Identity, m.keys.Role} {
		v, err := m.kv.Get(ctx, key)
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return model.Session{}, nil
		}
		if err != nil {
			return model.Session{}, fmt.Errorf("read session: %w", err)
		}
		vals[i] = string(v)
	}
	if vals[0] != loggedInValue {
		return model.Session{}, nil
	}
	return model.Session{LoggedIn: true, Identity: vals[1], Role: vals[2]}, nil
}

// Logout clears every session key and notifies subscribers.
func (m *Manager) Logout(ctx context.Context) error {
	prev, _ := m.Current(ctx)
	for _, key := range []string{m.keys.LoggedIn, m.keys.Identity, m.keys.Role} {
		if err := m.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	m.log.Info().Str("identity", prev.Identity).Msg("logged out")
	m.bus.Publish(events.SessionEvent{Kind: events.LoggedOut, Scope: m.keys.Scope, Identity: prev.Identity})
	return nil
}

// Keys returns the key set the manager persists under.
func (m *Manager) Keys() KeySet { return m.keys }
