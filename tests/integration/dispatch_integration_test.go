//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cabdesk/internal/events"
	"cabdesk/internal/modules/booking"
	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/geocoding"
	"cabdesk/internal/modules/location"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

var center = types.Point{Lat: 28.2919557, Lng: -81.4075713}

func f64(v float64) *float64 { return &v }

func manual(lat, lng float64) geocoding.Query {
	return geocoding.Query{Lat: &lat, Lng: &lng}
}

type stack struct {
	pricing  *pricing.Service
	bookings *booking.Service
	location *location.Service
}

func newStack(t *testing.T, pool *pgxpool.Pool, sink events.Observer) stack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	pricingSvc := pricing.NewService(pricing.NewStore(pool), "USD", logger)
	roster := location.NewPostgresRoster(pool)
	bookingStore := booking.NewStore(pool)
	locator := matching.NewLocator(roster, matching.DefaultRadiusMiles, matching.MaxCandidates, logger)

	fanout := events.NewFanout(logger, events.NewLogObserver(logger))
	if sink != nil {
		fanout.Add(sink)
	}
	bookingSvc := booking.NewService(booking.Deps{
		Store:      bookingStore,
		Geocoder:   geocoding.NewService(nil, center, logger),
		Distance:   distance.NewService(nil, distance.DefaultRoadBuffer, logger),
		Pricing:    pricingSvc,
		Dispatcher: matching.NewAutoDispatcher(locator, bookingStore, logger),
		Events:     fanout,
		Currency:   "USD",
		Logger:     logger,
	})
	return stack{pricing: pricingSvc, bookings: bookingSvc, location: location.NewService(roster, logger)}
}

func seedDriver(t *testing.T, pool *pgxpool.Pool, id, cab string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO drivers (id, name, cab_number, status, availability)
		VALUES ($1, $2, $3, 'active', 'offline')`, id, "Driver "+id, cab)
	require.NoError(t, err)
}

func TestBookingLifecycle_Postgres(t *testing.T) {
	pool := startPostgres(t)
	s := newStack(t, pool, nil)
	ctx := context.Background()

	_, err := s.pricing.SaveConfig(ctx, pricing.DefaultOperator, pricing.ConfigInput{
		FarePerMile:            f64(2.5),
		ExtraPass:              f64(1),
		WaitTimePerMinute:      f64(0.5),
		MinimumFare:            f64(15),
		WaitTriggerSpeedMph:    f64(5),
		IdleGracePeriodSeconds: f64(120),
		MeterRoundingMode:      pricing.RoundingNearest50,
		OtherFees:              []pricing.Fee{{Name: "Airport", Amount: 3}},
	})
	require.NoError(t, err)

	// No driver online yet: auto dispatch flags the booking.
	b, _, err := s.bookings.Create(ctx, booking.CreateCommand{
		Pickup:     manual(28.2919557, -81.4075713),
		Dropoff:    manual(28.4312, -81.3081),
		Passengers: 2,
		Dispatch:   &booking.AssignCommand{Method: booking.DispatchAuto},
	})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.True(t, b.NeedsReassignment)
	require.NotNil(t, b.EstimatedFare)

	queue, err := s.bookings.ListNeedingReassignment(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, b.ID, queue[0].ID)

	// A driver comes online near the pickup; retrying auto dispatch succeeds.
	seedDriver(t, pool, "drv-1", "C-101")
	res, err := s.location.ReportLocation(ctx, location.Report{
		DriverID: "drv-1", Point: types.Point{Lat: 28.30, Lng: -81.40}, Availability: location.Online,
		ReportedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	b, _, err = s.bookings.Assign(ctx, booking.AssignCommand{BookingID: b.ID, Method: booking.DispatchAuto})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAssigned, b.Status)
	assert.False(t, b.NeedsReassignment)
	assert.Equal(t, "C-101", *b.CabNumber)

	queue, err = s.bookings.ListNeedingReassignment(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	for _, st := range []booking.Status{booking.StatusEnRoute, booking.StatusPickedUp} {
		_, err = s.bookings.ChangeStatus(ctx, booking.StatusCommand{BookingID: b.ID, To: st})
		require.NoError(t, err)
	}
	b, err = s.bookings.ChangeStatus(ctx, booking.StatusCommand{
		BookingID: b.ID,
		To:        booking.StatusCompleted,
		Trip:      &pricing.TripMetrics{Miles: 8, WaitSeconds: 240, Fees: []string{"Airport"}},
	})
	require.NoError(t, err)
	// 2.50*8 + 1.00 extra passenger + (240-120)/60*0.50 wait + 3.00 airport fee.
	assert.Equal(t, "25.00", b.FinalFare.String())

	reloaded, err := s.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, reloaded.Status)
	assert.Equal(t, b.StatusVersion, reloaded.StatusVersion)
	assert.NotNil(t, reloaded.ClosedAt)

	var events int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM booking_events WHERE booking_id = $1`, string(b.ID)).Scan(&events))
	assert.Equal(t, 6, events, "created, dispatch_failed, assigned and three status changes")
}

func TestFlatRateBooking_Postgres(t *testing.T) {
	pool := startPostgres(t)
	s := newStack(t, pool, nil)
	ctx := context.Background()

	rate, err := s.pricing.CreateFlatRate(ctx, pricing.DefaultOperator, pricing.FlatRateInput{Name: "Airport", Amount: f64(55)})
	require.NoError(t, err)

	b, _, err := s.bookings.Create(ctx, booking.CreateCommand{
		Pickup: manual(28.29, -81.40), Dropoff: manual(28.43, -81.30),
		Strategy: pricing.StrategyFlat, FlatRateID: rate.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "55.00", b.EstimatedFare.String())

	off := false
	_, err = s.pricing.UpdateFlatRate(ctx, pricing.DefaultOperator, rate.ID, pricing.FlatRateInput{Name: "Airport", Amount: f64(55), Active: &off})
	require.NoError(t, err)

	_, _, err = s.bookings.Create(ctx, booking.CreateCommand{
		Pickup: manual(28.29, -81.40), Dropoff: manual(28.43, -81.30),
		Strategy: pricing.StrategyFlat, FlatRateID: rate.ID,
	})
	assert.True(t, types.IsValidation(err))
}
