package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdesk/internal/geo"
	"cabdesk/internal/modules/location"
	"cabdesk/internal/types"
)

var pickup = types.Point{Lat: 28.2919557, Lng: -81.4075713}

func northOf(p types.Point, miles float64) types.Point {
	return types.Point{Lat: p.Lat + miles/geo.EarthRadiusMiles*180/math.Pi, Lng: p.Lng}
}

func driverAt(id string, miles float64) location.Driver {
	p := northOf(pickup, miles)
	cab := "cab-" + id
	return location.Driver{
		ID:           types.ID(id),
		Name:         "Driver " + id,
		CabNumber:    &cab,
		Point:        &p,
		Status:       location.StatusActive,
		Availability: location.Online,
		ReportedAt:   time.Now(),
	}
}

type staticRoster struct {
	mu      sync.Mutex
	drivers []location.Driver
	err     error
	queries []location.RosterQuery
}

func (r *staticRoster) ActiveOnline(_ context.Context, q location.RosterQuery) ([]location.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	return r.drivers, r.err
}

func TestNearby_CapsAndSorts(t *testing.T) {
	var drivers []location.Driver
	for i := 20; i > 0; i-- {
		drivers = append(drivers, driverAt(fmt.Sprintf("d%02d", i), float64(i)*0.4))
	}
	loc := NewLocator(&staticRoster{drivers: drivers}, 0, 0, nil)

	got, adv := loc.Nearby(context.Background(), pickup, 0)
	require.Nil(t, adv)
	require.Len(t, got, MaxCandidates)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DistanceMiles, got[i].DistanceMiles)
	}
	assert.Equal(t, types.ID("d01"), got[0].DriverID)
	assert.InDelta(t, 0.4, got[0].DistanceMiles, 1e-6)
}

func TestNearby_FiltersIneligibleAndFar(t *testing.T) {
	noPos := driverAt("nopos", 1)
	noPos.Point = nil
	nan := driverAt("nan", 1)
	nan.Point = &types.Point{Lat: math.NaN(), Lng: -81}
	offline := driverAt("offline", 1)
	offline.Availability = location.Offline
	suspended := driverAt("suspended", 1)
	suspended.Status = location.StatusSuspended

	roster := &staticRoster{drivers: []location.Driver{
		driverAt("near", 2), driverAt("far", 12), noPos, nan, offline, suspended,
	}}
	got, adv := NewLocator(roster, 10, 12, nil).Nearby(context.Background(), pickup, 0)
	require.Nil(t, adv)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("near"), got[0].DriverID)
	assert.Equal(t, 10.0, roster.queries[0].RadiusMiles)
}

func TestNearby_RadiusOverride(t *testing.T) {
	roster := &staticRoster{drivers: []location.Driver{driverAt("a", 2), driverAt("b", 4)}}
	got, _ := NewLocator(roster, 10, 12, nil).Nearby(context.Background(), pickup, 3)
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, roster.queries[0].RadiusMiles)
}

func TestNearby_RosterFailureDegrades(t *testing.T) {
	got, adv := NewLocator(&staticRoster{err: errors.New("timeout")}, 10, 12, nil).Nearby(context.Background(), pickup, 0)
	assert.Empty(t, got)
	require.NotNil(t, adv)
	assert.Equal(t, advisoryRosterUnavailable, adv.Code)

	got, adv = NewLocator(nil, 10, 12, nil).Nearby(context.Background(), pickup, 0)
	assert.Empty(t, got)
	assert.NotNil(t, adv)
}

// gatedRoster blocks each lookup until the test releases the matching pickup.
type gatedRoster struct {
	mu      sync.Mutex
	gates   map[types.Point]chan []location.Driver
	started chan types.Point
}

func newGatedRoster() *gatedRoster {
	return &gatedRoster{gates: map[types.Point]chan []location.Driver{}, started: make(chan types.Point, 8)}
}

func (g *gatedRoster) gate(p types.Point) chan []location.Driver {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[p]
	if !ok {
		ch = make(chan []location.Driver, 1)
		g.gates[p] = ch
	}
	return ch
}

func (g *gatedRoster) ActiveOnline(_ context.Context, q location.RosterQuery) ([]location.Driver, error) {
	g.started <- q.Center
	return <-g.gate(q.Center), nil
}

type driverRecorder struct {
	mu      sync.Mutex
	results map[uint64][]Candidate
	order   []uint64
}

func (r *driverRecorder) OnDrivers(id uint64, c []Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[uint64][]Candidate{}
	}
	r.results[id] = c
	r.order = append(r.order, id)
}

func (r *driverRecorder) OnAdvisory(uint64, types.Advisory) {}

func TestWatcher_DiscardsSupersededPickup(t *testing.T) {
	roster := newGatedRoster()
	rec := &driverRecorder{}
	w := NewLocator(roster, 10, 12, nil).NewWatcher(rec, 0)
	defer w.Close()

	first := pickup
	second := northOf(pickup, 20)

	id1 := w.Update(&first)
	<-roster.started
	id2 := w.Update(&second)
	<-roster.started

	roster.gate(second) <- []location.Driver{driverAt("x", 20.5)}
	require.Eventually(t, func() bool { id, _ := w.Snapshot(); return id == id2 }, time.Second, time.Millisecond)

	roster.gate(first) <- []location.Driver{driverAt("y", 1)}
	w.Wait()

	id, cands := w.Snapshot()
	assert.Equal(t, id2, id)
	require.Len(t, cands, 1)
	assert.Equal(t, types.ID("x"), cands[0].DriverID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, published := rec.results[id1]
	assert.False(t, published, "stale lookup must not reach the observer")
}

func TestWatcher_NilPickupClearsList(t *testing.T) {
	w := NewLocator(&staticRoster{drivers: []location.Driver{driverAt("a", 1)}}, 10, 12, nil).NewWatcher(nil, 0)
	defer w.Close()

	w.Update(&pickup)
	w.Wait()
	_, cands := w.Snapshot()
	require.Len(t, cands, 1)

	id := w.Update(nil)
	got, cands := w.Snapshot()
	assert.Equal(t, id, got)
	assert.Empty(t, cands)
}

type busySet map[types.ID]bool

func (b busySet) BusyDrivers(context.Context) (map[types.ID]bool, error) { return b, nil }

type busyErr struct{}

func (busyErr) BusyDrivers(context.Context) (map[types.ID]bool, error) {
	return nil, errors.New("db down")
}

func TestAutoDispatcher_Pick(t *testing.T) {
	noCab := driverAt("nocab", 0.5)
	noCab.CabNumber = nil
	roster := &staticRoster{drivers: []location.Driver{noCab, driverAt("busy", 1), driverAt("free", 2), driverAt("later", 3)}}
	loc := NewLocator(roster, 10, 12, nil)

	c, ok, err := NewAutoDispatcher(loc, busySet{"busy": true}, nil).Pick(context.Background(), pickup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ID("free"), c.DriverID)
}

func TestAutoDispatcher_PicksPastBusyDriversBeyondDisplayCap(t *testing.T) {
	busy := busySet{}
	var drivers []location.Driver
	for i := 1; i <= MaxCandidates; i++ {
		id := fmt.Sprintf("d%02d", i)
		drivers = append(drivers, driverAt(id, float64(i)*0.5))
		busy[types.ID(id)] = true
	}
	drivers = append(drivers, driverAt("d13", 6.5))
	loc := NewLocator(&staticRoster{drivers: drivers}, 10, MaxCandidates, nil)

	shown, adv := loc.Nearby(context.Background(), pickup, 0)
	require.Nil(t, adv)
	require.Len(t, shown, MaxCandidates)

	c, ok, err := NewAutoDispatcher(loc, busy, nil).Pick(context.Background(), pickup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ID("d13"), c.DriverID)
	assert.InDelta(t, 6.5, c.DistanceMiles, 1e-6)
}

func TestAutoDispatcher_NoEligibleDriver(t *testing.T) {
	ctx := context.Background()

	_, ok, err := NewAutoDispatcher(NewLocator(&staticRoster{}, 10, 12, nil), nil, nil).Pick(ctx, pickup)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = NewAutoDispatcher(NewLocator(&staticRoster{err: errors.New("x")}, 10, 12, nil), nil, nil).Pick(ctx, pickup)
	require.NoError(t, err)
	assert.False(t, ok, "roster failure is a dispatch failure, not an error")

	roster := &staticRoster{drivers: []location.Driver{driverAt("a", 1)}}
	_, _, err = NewAutoDispatcher(NewLocator(roster, 10, 12, nil), busyErr{}, nil).Pick(ctx, pickup)
	assert.Error(t, err)
}
