package ui

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
	"github.com/Axmae/ambulance-management/internal/seed"
)

func TestComputeKPIs_Seed(t *testing.T) {
	snap, err := seed.Embedded{}.Fetch(context.Background())
	require.NoError(t, err)

	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	reqs := []portal.OwnedRequest{
		{ServiceRequest: model.ServiceRequest{ID: "a", Status: model.RequestPending, CreatedAt: now}, Owner: "x@example.ma"},
		{ServiceRequest: model.ServiceRequest{ID: "b", Status: model.RequestInProgress, CreatedAt: now}, Owner: "x@example.ma"},
		{ServiceRequest: model.ServiceRequest{ID: "c", Status: model.RequestCompleted, CreatedAt: now}, Owner: "y@example.ma"},
	}
	k := ComputeKPIs(snap, reqs)

	want := KPIs{
		TotalAmbulances:     4,
		AvailableAmbulances: 2,
		TotalInterventions:  3,
		ByType:              []Count{{"Accident", 1}, {"Maladie", 1}, {"Transfert", 1}},
		// 2024-05-13 is a Monday
		ByWeekday:       []Count{{"day_mon", 1}, {"day_tue", 0}, {"day_wed", 1}, {"day_thu", 0}, {"day_fri", 1}, {"day_sat", 0}, {"day_sun", 0}},
		MaxType:         1,
		MaxWeekday:      1,
		PendingRequests: 2,
		RecentRequests:  reqs,
	}
	if diff := cmp.Diff(want, k); diff != "" {
		t.Fatalf("KPIs mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeKPIs_Empty(t *testing.T) {
	k := ComputeKPIs(model.NewSnapshot(model.Ambulances, model.Interventions), nil)
	assert.Zero(t, k.TotalAmbulances)
	assert.Len(t, k.ByWeekday, 7)
	assert.Empty(t, k.RecentRequests)
}

func TestWeekday(t *testing.T) {
	d, ok := weekday("2024-05-19T08:30")
	assert.True(t, ok)
	assert.Equal(t, 6, d)
	_, ok = weekday("19/05/2024")
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	recs := []model.Record{
		{ID: 1, Fields: map[string]any{"nom": "Benali"}},
		{ID: 12, Fields: map[string]any{"nom": "Tazi", "age": int64(40)}},
	}
	assert.Len(t, Search(recs, ""), 2)
	assert.Equal(t, 12, Search(recs, "TAZ")[0].ID)
	assert.Equal(t, 12, Search(recs, "40")[0].ID)
	assert.Equal(t, 1, Search(recs, "1")[0].ID)
	assert.Empty(t, Search(recs, "zzz"))
}

func TestRegion(t *testing.T) {
	r := NewRegion()
	var got []Update
	unsub := r.Subscribe(func(u Update) { got = append(got, u) })
	r.Set("<p>a</p>", false)
	r.Set("<p>b</p>", true)
	unsub()
	r.Set("<p>c</p>", false)

	assert.Equal(t, []Update{{Version: 1, HTML: "<p>a</p>"}, {Version: 2, HTML: "<p>b</p>", Reload: true}}, got)
	assert.Equal(t, uint64(3), r.Version())
	assert.Equal(t, "<p>c</p>", string(r.HTML()))
}
