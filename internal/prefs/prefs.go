// Package prefs persists the language and theme of a browser profile.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/Axmae/ambulance-management/internal/events"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/kvstore"
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// ErrUnsupported is returned for a language or theme outside the known set.
var ErrUnsupported = errors.New("unsupported preference value")

// Prefs reads and writes the preference keys of one profile.
type Prefs struct {
	kv           kvstore.Store
	catalog      *i18n.Catalog
	defaultTheme string
	bus          *events.Bus[events.PrefsEvent]
}

// New returns preferences backed by a profile-scoped container.
func New(kv kvstore.Store, catalog *i18n.Catalog, defaultTheme string) *Prefs {
	if defaultTheme != ThemeDark {
		defaultTheme = ThemeLight
	}
	return &Prefs{kv: kv, catalog: catalog, defaultTheme: defaultTheme, bus: events.NewBus[events.PrefsEvent]()}
}

// Subscribe registers fn for preference changes.
func (p *Prefs) Subscribe(fn func(events.PrefsEvent)) (unsubscribe func()) {
	return p.bus.Subscribe(fn)
}

// Language returns the stored language, or hint negotiated from an
// Accept-Language header when none is stored.
func (p *Prefs) Language(ctx context.Context, acceptLanguage string) (string, error) {
	v, err := p.kv.Get(ctx, kvstore.KeyLanguage)
	switch {
	case err == nil && p.catalog.Has(string(v)):
		return string(v), nil
	case err == nil, errors.Is(err, kvstore.ErrKeyNotFound):
		return p.catalog.Negotiate(acceptLanguage), nil
	default:
		return "", fmt.Errorf("read language: %w", err)
	}
}

// SetLanguage stores lang and notifies subscribers when it changed.
func (p *Prefs) SetLanguage(ctx context.Context, lang string) error {
	if !p.catalog.Has(lang) {
		return fmt.Errorf("language %q: %w", lang, ErrUnsupported)
	}
	return p.set(ctx, kvstore.KeyLanguage, lang, events.LanguageChanged)
}

// Theme returns the stored theme or the default.
func (p *Prefs) Theme(ctx context.Context) (string, error) {
	v, err := p.kv.Get(ctx, kvstore.KeyTheme)
	switch {
	case err == nil && (string(v) == ThemeLight || string(v) == ThemeDark):
		return string(v), nil
	case err == nil, errors.Is(err, kvstore.ErrKeyNotFound):
		return p.defaultTheme, nil
	default:
		return "", fmt.Errorf("read theme: %w", err)
	}
}

// SetTheme stores theme and notifies subscribers when it changed.
func (p *Prefs) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("theme %q: %w", theme, ErrUnsupported)
	}
	return p.set(ctx, kvstore.KeyTheme, theme, events.ThemeChanged)
}

func (p *Prefs) set(ctx context.Context, key, value string, kind events.PrefsKind) error {
	prev, err := p.kv.Get(ctx, key)
	if err != nil && !errors.Is(err, kvstore.ErrKeyNotFound) {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err == nil && string(prev) == value {
		return nil
	}
	if err := p.kv.Put(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	p.bus.Publish(events.PrefsEvent{Kind: kind, Value: value})
	return nil
}
