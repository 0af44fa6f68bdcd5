package ui

import (
	"html/template"
	"sync"

	"github.com/Axmae/ambulance-management/internal/events"
)

// Update is what a Region tells its listeners after a change. Reload means the
// page chrome around the region changed too (session, language, theme) and
// the whole page must be fetched again.
type Update struct {
	Version uint64
	HTML    template.HTML
	Reload  bool
}

// Region is a named slot of the page whose HTML the router replaces.
type Region struct {
	// pub is held across Set so listeners see updates in version order
	pub sync.Mutex

	mu      sync.RWMutex
	html    template.HTML
	version uint64
	bus     *events.Bus[Update]
}

// NewRegion returns an empty region.
func NewRegion() *Region {
	return &Region{bus: events.NewBus[Update]()}
}

// Set replaces the region's HTML and notifies listeners. Listeners must
// not call Set.
func (r *Region) Set(h template.HTML, reload bool) {
	r.pub.Lock()
	defer r.pub.Unlock()
	r.mu.Lock()
	r.html = h
	r.version++
	u := Update{Version: r.version, HTML: h, Reload: reload}
	r.mu.Unlock()
	r.bus.Publish(u)
}

// Reload tells listeners to fetch the whole page again, keeping the content.
func (r *Region) Reload() {
	r.pub.Lock()
	defer r.pub.Unlock()
	r.mu.Lock()
	r.version++
	u := Update{Version: r.version, HTML: r.html, Reload: true}
	r.mu.Unlock()
	r.bus.Publish(u)
}

// HTML returns the current content.
func (r *Region) HTML() template.HTML {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.html
}

// Version counts Set calls.
func (r *Region) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Subscribe registers fn for every Set.
func (r *Region) Subscribe(fn func(Update)) (unsubscribe func()) {
	return r.bus.Subscribe(fn)
}
