// Package events carries the change notifications of the admin service.
package events

// StoreKind identifies what happened to a collection.
type StoreKind string

const (
	Created StoreKind = "created"
	Updated StoreKind = "updated"
	Deleted StoreKind = "deleted"
	// Reset replaces the whole snapshot (import, reset); Collection is empty.
	Reset StoreKind = "reset"
)

// StoreEvent is published once per successful entity store mutation.
// Only ids are carried; subscribers read the store for the record.
type StoreEvent struct {
	Kind       StoreKind
	Collection string
	ID         int
}

// Touches reports whether the event concerns collection.
func (e StoreEvent) Touches(collection string) bool {
	return e.Kind == Reset || e.Collection == collection
}

// SessionKind identifies a session transition.
type SessionKind string

const (
	LoginSucceeded SessionKind = "login_succeeded"
	LoggedOut      SessionKind = "logged_out"
)

// SessionEvent is published by a session manager on login and logout.
type SessionEvent struct {
	Kind     SessionKind
	Scope    string // which key set (admin, portal)
	Identity string
	Role     string
}

// PrefsKind identifies a preference change.
type PrefsKind string

const (
	LanguageChanged PrefsKind = "language_changed"
	ThemeChanged    PrefsKind = "theme_changed"
)

// PrefsEvent is published when a profile preference changes.
type PrefsEvent struct {
	Kind  PrefsKind
	Value string
}
