package ui

import (
	"context"
	"html/template"
	"time"

	"github.com/Axmae/ambulance-management/internal/entitystore"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
)

// Count is one bar of a chart.
type Count struct {
	Key string // i18n key or raw label
	N   int
}

// KPIs are the figures of the dashboard.
type KPIs struct {
	TotalAmbulances     int
	AvailableAmbulances int
	TotalInterventions  int
	ByType              []Count
	ByWeekday           []Count
	MaxType             int
	MaxWeekday          int
	PendingRequests     int
	RecentRequests      []portal.OwnedRequest
}

var weekdayKeys = []string{"day_mon", "day_tue", "day_wed", "day_thu", "day_fri", "day_sat", "day_sun"}

const recentRequests = 5

// ComputeKPIs derives the dashboard figures from a snapshot and the portal
// requests (newest first).
func ComputeKPIs(snap model.Snapshot, reqs []portal.OwnedRequest) KPIs {
	var k KPIs
	ambulances := snap.Collections[model.Ambulances]
	k.TotalAmbulances = len(ambulances)
	for _, a := range ambulances {
		if a.String("statut") == model.StatutDisponible {
			k.AvailableAmbulances++
		}
	}

	interventions := snap.Collections[model.Interventions]
	k.TotalInterventions = len(interventions)
	byType := make(map[string]int, len(model.InterventionTypes))
	days := make([]int, 7)
	for _, in := range interventions {
		byType[in.String("type")]++
		if d, ok := weekday(in.String("date")); ok {
			days[d]++
		}
	}
	for _, t := range model.InterventionTypes {
		k.ByType = append(k.ByType, Count{Key: t, N: byType[t]})
		k.MaxType = max(k.MaxType, byType[t])
	}
	for i, key := range weekdayKeys {
		k.ByWeekday = append(k.ByWeekday, Count{Key: key, N: days[i]})
		k.MaxWeekday = max(k.MaxWeekday, days[i])
	}

	for _, r := range reqs {
		if r.Status == model.RequestPending || r.Status == model.RequestInProgress {
			k.PendingRequests++
		}
	}
	k.RecentRequests = reqs[:min(len(reqs), recentRequests)]
	return k
}

// weekday returns 0 for Monday through 6 for Sunday.
func weekday(date string) (int, bool) {
	if len(date) < 10 {
		return 0, false
	}
	t, err := time.Parse(time.DateOnly, date[:10])
	if err != nil {
		return 0, false
	}
	return (int(t.Weekday()) + 6) % 7, true
}

// DashboardView shows the KPIs of the profile.
type DashboardView struct {
	store    *entitystore.Store
	requests RequestSource
	rnd      *Renderer
}

// NewDashboardView returns the dashboard. requests may be nil.
func NewDashboardView(store *entitystore.Store, requests RequestSource, rnd *Renderer) *DashboardView {
	return &DashboardView{store: store, requests: requests, rnd: rnd}
}

func (d *DashboardView) Name() string { return DefaultView }

func (d *DashboardView) Watches(collection string) bool {
	switch collection {
	case model.Ambulances, model.Interventions:
		return true
	case portal.Collection:
		return d.requests != nil
	}
	return false
}

type dashboardData struct {
	Input
	KPIs
}

func (d *DashboardView) Render(ctx context.Context, in Input) (template.HTML, error) {
	snap, err := d.store.Load(ctx)
	if err != nil {
		return "", err
	}
	var reqs []portal.OwnedRequest
	if d.requests != nil {
		if reqs, err = d.requests.AllRequests(ctx); err != nil {
			return "", err
		}
	}
	return d.rnd.Fragment("dashboard", dashboardData{Input: in, KPIs: ComputeKPIs(snap, reqs)})
}
