package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdesk/internal/types"
)

type mockReporter struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (m *mockReporter) Report(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	return nil
}

var kissimmee = types.Point{Lat: 28.2919557, Lng: -81.4075713}

func TestReportLocation_AcceptsAndNormalises(t *testing.T) {
	rep := &mockReporter{}
	svc := NewService(rep, nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := svc.ReportLocation(context.Background(), Report{
		DriverID:   "d1",
		Point:      types.Point{Lat: 28.29195574321, Lng: -81.40757131234},
		ReportedAt: at,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.Len(t, rep.reports, 1)
	assert.Equal(t, 28.291956, rep.reports[0].Point.Lat)
}

func TestReportLocation_DropsOutOfOrderPings(t *testing.T) {
	rep := &mockReporter{}
	svc := NewService(rep, nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.ReportLocation(ctx, Report{DriverID: "d1", Point: kissimmee, ReportedAt: at})
	require.NoError(t, err)

	res, err := svc.ReportLocation(ctx, Report{DriverID: "d1", Point: kissimmee, ReportedAt: at.Add(-time.Second)})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "stale", res.Reason)

	res, err = svc.ReportLocation(ctx, Report{DriverID: "d2", Point: kissimmee, ReportedAt: at.Add(-time.Second)})
	require.NoError(t, err)
	assert.True(t, res.Accepted, "other drivers are tracked separately")
	assert.Len(t, rep.reports, 2)
}

func TestReportLocation_Validation(t *testing.T) {
	svc := NewService(&mockReporter{}, nil)
	tests := []struct {
		field string
		r     Report
	}{
		{"driver_id", Report{Point: kissimmee}},
		{"point", Report{DriverID: "d1", Point: types.Point{Lat: math.NaN()}}},
		{"point", Report{DriverID: "d1", Point: types.Point{Lat: 91, Lng: 0}}},
		{"availability", Report{DriverID: "d1", Point: kissimmee, Availability: "busy"}},
	}
	for _, tt := range tests {
		_, err := svc.ReportLocation(context.Background(), tt.r)
		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, tt.field, verr.Field)
	}
}

func TestReportLocation_StoreFailureAllowsRetry(t *testing.T) {
	rep := &mockReporter{err: errors.New("redis down")}
	svc := NewService(rep, nil)
	ctx := context.Background()
	at := time.Now()

	_, err := svc.ReportLocation(ctx, Report{DriverID: "d1", Point: kissimmee, ReportedAt: at})
	assert.True(t, types.IsPersistence(err))

	rep.err = nil
	res, err := svc.ReportLocation(ctx, Report{DriverID: "d1", Point: kissimmee, ReportedAt: at})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestReportLocation_UnknownDriver(t *testing.T) {
	svc := NewService(&mockReporter{err: ErrDriverNotFound}, nil)
	_, err := svc.ReportLocation(context.Background(), Report{DriverID: "ghost", Point: kissimmee})
	assert.ErrorIs(t, err, ErrDriverNotFound)
}

func TestDriverFromHash(t *testing.T) {
	d := driverFromHash("d9", map[string]string{
		"name":         "Ana",
		"cab_number":   "C-17",
		"status":       "active",
		"availability": "online",
		"reported_at":  "1767268800000",
	})
	assert.True(t, d.Eligible())
	require.NotNil(t, d.CabNumber)
	assert.Equal(t, "C-17", *d.CabNumber)
	assert.Equal(t, int64(1767268800000), d.ReportedAt.UnixMilli())

	empty := driverFromHash("d10", map[string]string{})
	assert.False(t, empty.Eligible())
	assert.Nil(t, empty.CabNumber)
	assert.True(t, empty.ReportedAt.IsZero())
}

func TestRTDBEntryToDriver(t *testing.T) {
	lat, lng := 28.3, -81.4
	d := rtdbDriverEntry{Lat: &lat, Lng: &lng, Status: "online", Active: true, CabNumber: "7"}.toDriver("x")
	assert.True(t, d.Eligible())
	require.NotNil(t, d.Point)
	assert.Equal(t, 28.3, d.Point.Lat)

	noPos := rtdbDriverEntry{Status: "online", Active: true}.toDriver("y")
	assert.Nil(t, noPos.Point)
	assert.Nil(t, noPos.CabNumber)
}

func TestRedisRoster_ReportAndSearch(t *testing.T) {
	redisAddr := os.Getenv("CABDESK_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("CABDESK_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	ctx := context.Background()
	roster := NewRedisRoster(rdb)
	cab := "C-1"
	online := Driver{ID: types.ID(fmt.Sprintf("drv_on_%d", time.Now().UnixNano())), Name: "On", CabNumber: &cab, Status: StatusActive, Availability: Online}
	offline := Driver{ID: types.ID(fmt.Sprintf("drv_off_%d", time.Now().UnixNano())), Name: "Off", Status: StatusActive, Availability: Offline}
	for _, d := range []Driver{online, offline} {
		require.NoError(t, roster.Upsert(ctx, d))
		require.NoError(t, roster.Report(ctx, Report{DriverID: d.ID, Point: kissimmee, ReportedAt: time.Now()}))
		defer roster.Remove(ctx, d.ID)
	}

	drivers, err := roster.ActiveOnline(ctx, RosterQuery{Center: kissimmee, RadiusMiles: 1})
	require.NoError(t, err)
	var ids []types.ID
	for _, d := range drivers {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, online.ID)
	assert.NotContains(t, ids, offline.ID)
}
