// README: Booking store backed by PostgreSQL (bookings, booking_events).
package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	// Save overwrites the booking when its stored version still equals expectedVersion and
	// bumps the version. It reports false on a version mismatch.
	Save(ctx context.Context, b *Booking, expectedVersion int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListNeedingReassignment(ctx context.Context) ([]*Booking, error)
	BusyDrivers(ctx context.Context) (map[types.ID]bool, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const bookingColumns = `
	id, status, status_version, pickup_address, dropoff_address,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, passengers, notes,
	distance_miles, distance_source, fare_strategy, flat_rate_id,
	estimated_fare_cents, final_fare_cents, currency, dispatch_method,
	driver_id, cab_number, needs_reassignment, status_reason, status_fee_cents,
	created_at, updated_at, assigned_at, closed_at`

func (s *Store) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23, $24,
			$25, $26, $27, $28
		)`,
		bookingArgs(b)...,
	)
	return err
}

func bookingArgs(b *Booking) []any {
	var method *string
	if b.DispatchMethod != nil {
		m := string(*b.DispatchMethod)
		method = &m
	}
	return []any{
		string(b.ID), string(b.Status), b.StatusVersion, b.PickupAddress, b.DropoffAddress,
		b.Pickup.Lat, b.Pickup.Lng, b.Dropoff.Lat, b.Dropoff.Lng, b.Passengers, b.Notes,
		b.DistanceMiles, string(b.DistanceSource), string(b.FareStrategy), idPtr(b.FlatRateID),
		centsPtr(b.EstimatedFare), centsPtr(b.FinalFare), currencyOf(b), method,
		idPtr(b.DriverID), b.CabNumber, b.NeedsReassignment, b.StatusReason, centsPtr(b.StatusFee),
		b.CreatedAt, b.UpdatedAt, b.AssignedAt, b.ClosedAt,
	}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id))
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Store) Save(ctx context.Context, b *Booking, expectedVersion int) (bool, error) {
	var method *string
	if b.DispatchMethod != nil {
		m := string(*b.DispatchMethod)
		method = &m
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings SET
			status = $3,
			status_version = status_version + 1,
			pickup_address = $4, dropoff_address = $5,
			pickup_lat = $6, pickup_lng = $7, dropoff_lat = $8, dropoff_lng = $9,
			passengers = $10, notes = $11,
			distance_miles = $12, distance_source = $13, fare_strategy = $14, flat_rate_id = $15,
			estimated_fare_cents = $16, final_fare_cents = $17, currency = $18, dispatch_method = $19,
			driver_id = $20, cab_number = $21, needs_reassignment = $22,
			status_reason = $23, status_fee_cents = $24,
			updated_at = $25, assigned_at = $26, closed_at = $27
		WHERE id = $1 AND status_version = $2`,
		string(b.ID), expectedVersion, string(b.Status),
		b.PickupAddress, b.DropoffAddress,
		b.Pickup.Lat, b.Pickup.Lng, b.Dropoff.Lat, b.Dropoff.Lng,
		b.Passengers, b.Notes,
		b.DistanceMiles, string(b.DistanceSource), string(b.FareStrategy), idPtr(b.FlatRateID),
		centsPtr(b.EstimatedFare), centsPtr(b.FinalFare), currencyOf(b), method,
		idPtr(b.DriverID), b.CabNumber, b.NeedsReassignment,
		b.StatusReason, centsPtr(b.StatusFee),
		b.UpdatedAt, b.AssignedAt, b.ClosedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO booking_events (
			booking_id, kind, from_status, to_status, actor_type, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		string(e.BookingID),
		e.Kind,
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.Reason,
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *Store) ListNeedingReassignment(ctx context.Context) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE needs_reassignment
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) BusyDrivers(ctx context.Context) (map[types.ID]bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT driver_id
		FROM bookings
		WHERE driver_id IS NOT NULL
		  AND status IN ('assigned', 'en_route', 'picked_up')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	busy := map[types.ID]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		busy[types.ID(id)] = true
	}
	return busy, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var notes, flatRateID, method, driverID, cab, reason sql.NullString
	var estimated, final, fee sql.NullInt64
	var currency string
	var assignedAt, closedAt sql.NullTime
	var source, strategy string

	err := row.Scan(
		&b.ID, &b.Status, &b.StatusVersion, &b.PickupAddress, &b.DropoffAddress,
		&b.Pickup.Lat, &b.Pickup.Lng, &b.Dropoff.Lat, &b.Dropoff.Lng, &b.Passengers, &notes,
		&b.DistanceMiles, &source, &strategy, &flatRateID,
		&estimated, &final, &currency, &method,
		&driverID, &cab, &b.NeedsReassignment, &reason, &fee,
		&b.CreatedAt, &b.UpdatedAt, &assignedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}

	b.DistanceSource = distance.Source(source)
	b.FareStrategy = pricing.Strategy(strategy)
	b.Notes = strPtr(notes)
	b.CabNumber = strPtr(cab)
	b.StatusReason = strPtr(reason)
	if flatRateID.Valid {
		id := types.ID(flatRateID.String)
		b.FlatRateID = &id
	}
	if driverID.Valid {
		id := types.ID(driverID.String)
		b.DriverID = &id
	}
	if method.Valid {
		m := DispatchMethod(method.String)
		b.DispatchMethod = &m
	}
	b.EstimatedFare = money(estimated, currency)
	b.FinalFare = money(final, currency)
	b.StatusFee = money(fee, currency)
	b.AssignedAt = toTimePtr(assignedAt)
	b.ClosedAt = toTimePtr(closedAt)
	return &b, nil
}

func currencyOf(b *Booking) string {
	for _, m := range []*types.Money{b.EstimatedFare, b.FinalFare, b.StatusFee} {
		if m != nil && m.Currency != "" {
			return m.Currency
		}
	}
	return types.DefaultCurrency
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func centsPtr(v *types.Money) *int64 {
	if v == nil {
		return nil
	}
	n := v.Amount
	return &n
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func money(v sql.NullInt64, currency string) *types.Money {
	if !v.Valid {
		return nil
	}
	return &types.Money{Amount: v.Int64, Currency: currency}
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
