// README: Pricing store backed by PostgreSQL (fare_configs, flat_rates).
package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cabdesk/internal/types"
)

// Repository is what the pricing service needs from storage.
type Repository interface {
	GetConfig(ctx context.Context, operator types.ID) (*FareConfig, error)
	UpsertConfig(ctx context.Context, cfg *FareConfig) error
	ReplaceOtherFees(ctx context.Context, operator types.ID, fees []Fee) error
	CreateFlatRate(ctx context.Context, r *FlatRate) error
	UpdateFlatRate(ctx context.Context, r *FlatRate) error
	DeleteFlatRate(ctx context.Context, operator, id types.ID) error
	GetFlatRate(ctx context.Context, operator, id types.ID) (*FlatRate, error)
	ListFlatRates(ctx context.Context, operator types.ID, activeOnly bool) ([]FlatRate, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetConfig(ctx context.Context, operator types.ID) (*FareConfig, error) {
	row := s.db.QueryRow(ctx, `
		SELECT operator_id, fare_per_mile, extra_pass, wait_time_per_minute, base_fare, minimum_fare,
		       wait_trigger_speed_mph, idle_grace_period_seconds, meter_rounding_mode,
		       surge_enabled, surge_multiplier, surge_notes, other_fees, include_other_fees,
		       created_at, updated_at
		FROM fare_configs
		WHERE operator_id = $1`, string(operator),
	)

	var c FareConfig
	var extraPass, baseFare, minimumFare, surgeMultiplier sql.NullFloat64
	var surgeNotes sql.NullString
	var fees []byte
	err := row.Scan(
		&c.OperatorID, &c.FarePerMile, &extraPass, &c.WaitTimePerMinute, &baseFare, &minimumFare,
		&c.WaitTriggerSpeedMph, &c.IdleGracePeriodSeconds, &c.MeterRoundingMode,
		&c.SurgeEnabled, &surgeMultiplier, &surgeNotes, &fees, &c.IncludeOtherFeesInEstimate,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	c.ExtraPass = floatPtr(extraPass)
	c.BaseFare = floatPtr(baseFare)
	c.MinimumFare = floatPtr(minimumFare)
	c.SurgeMultiplier = floatPtr(surgeMultiplier)
	if surgeNotes.Valid {
		n := surgeNotes.String
		c.SurgeNotes = &n
	}
	if len(fees) > 0 {
		if err := json.Unmarshal(fees, &c.OtherFees); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// UpsertConfig creates the operator's configuration or overwrites it in place.
func (s *Store) UpsertConfig(ctx context.Context, c *FareConfig) error {
	fees, err := json.Marshal(nonNilFees(c.OtherFees))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.QueryRow(ctx, `
		INSERT INTO fare_configs (
			operator_id, fare_per_mile, extra_pass, wait_time_per_minute, base_fare, minimum_fare,
			wait_trigger_speed_mph, idle_grace_period_seconds, meter_rounding_mode,
			surge_enabled, surge_multiplier, surge_notes, other_fees, include_other_fees,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (operator_id) DO UPDATE SET
			fare_per_mile = EXCLUDED.fare_per_mile,
			extra_pass = EXCLUDED.extra_pass,
			wait_time_per_minute = EXCLUDED.wait_time_per_minute,
			base_fare = EXCLUDED.base_fare,
			minimum_fare = EXCLUDED.minimum_fare,
			wait_trigger_speed_mph = EXCLUDED.wait_trigger_speed_mph,
			idle_grace_period_seconds = EXCLUDED.idle_grace_period_seconds,
			meter_rounding_mode = EXCLUDED.meter_rounding_mode,
			surge_enabled = EXCLUDED.surge_enabled,
			surge_multiplier = EXCLUDED.surge_multiplier,
			surge_notes = EXCLUDED.surge_notes,
			other_fees = EXCLUDED.other_fees,
			include_other_fees = EXCLUDED.include_other_fees,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		string(c.OperatorID), c.FarePerMile, c.ExtraPass, c.WaitTimePerMinute, c.BaseFare, c.MinimumFare,
		c.WaitTriggerSpeedMph, c.IdleGracePeriodSeconds, string(c.MeterRoundingMode),
		c.SurgeEnabled, c.SurgeMultiplier, c.SurgeNotes, fees, c.IncludeOtherFeesInEstimate,
		now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (s *Store) ReplaceOtherFees(ctx context.Context, operator types.ID, fees []Fee) error {
	raw, err := json.Marshal(nonNilFees(fees))
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE fare_configs SET other_fees = $2, updated_at = $3
		WHERE operator_id = $1`,
		string(operator), raw, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *Store) CreateFlatRate(ctx context.Context, r *FlatRate) error {
	if r.ID == "" {
		r.ID = types.ID(uuid.NewString())
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.db.Exec(ctx, `
		INSERT INTO flat_rates (id, operator_id, name, distance_label, amount, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		string(r.ID), string(r.OperatorID), r.Name, r.DistanceLabel, r.Amount, r.Active, now,
	)
	return err
}

func (s *Store) UpdateFlatRate(ctx context.Context, r *FlatRate) error {
	r.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE flat_rates SET name = $3, distance_label = $4, amount = $5, active = $6, updated_at = $7
		WHERE id = $1 AND operator_id = $2`,
		string(r.ID), string(r.OperatorID), r.Name, r.DistanceLabel, r.Amount, r.Active, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFlatRateNotFound
	}
	return nil
}

func (s *Store) DeleteFlatRate(ctx context.Context, operator, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM flat_rates WHERE id = $1 AND operator_id = $2`, string(id), string(operator))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFlatRateNotFound
	}
	return nil
}

func (s *Store) GetFlatRate(ctx context.Context, operator, id types.ID) (*FlatRate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, operator_id, name, distance_label, amount, active, created_at, updated_at
		FROM flat_rates
		WHERE id = $1 AND operator_id = $2`, string(id), string(operator),
	)
	r, err := scanFlatRate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFlatRateNotFound
	}
	return r, err
}

func (s *Store) ListFlatRates(ctx context.Context, operator types.ID, activeOnly bool) ([]FlatRate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, operator_id, name, distance_label, amount, active, created_at, updated_at
		FROM flat_rates
		WHERE operator_id = $1 AND ($2 = false OR active)
		ORDER BY name`, string(operator), activeOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FlatRate
	for rows.Next() {
		r, err := scanFlatRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanFlatRate(row pgx.Row) (*FlatRate, error) {
	var r FlatRate
	var label sql.NullString
	if err := row.Scan(&r.ID, &r.OperatorID, &r.Name, &label, &r.Amount, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if label.Valid {
		l := label.String
		r.DistanceLabel = &l
	}
	return &r, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nonNilFees(fees []Fee) []Fee {
	if fees == nil {
		return []Fee{}
	}
	return fees
}
