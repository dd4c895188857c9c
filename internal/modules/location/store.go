// README: Roster stores backed by Redis GEO and Postgres.
package location

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cabdesk/internal/geo"
	"cabdesk/internal/types"
)

var ErrDriverNotFound = errors.New("driver not found")

// Roster answers "which eligible drivers are near this point".
type Roster interface {
	ActiveOnline(ctx context.Context, q RosterQuery) ([]Driver, error)
}

// Reporter persists driver position pings.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

const (
	driverGeoKey     = "roster:drivers"
	driverHashPrefix = "roster:driver:"
)

func driverHashKey(id types.ID) string { return driverHashPrefix + string(id) }

// RedisRoster keeps positions in a GEO set and driver attributes in one hash per driver.
type RedisRoster struct {
	redis *redis.Client
}

func NewRedisRoster(rdb *redis.Client) *RedisRoster {
	return &RedisRoster{redis: rdb}
}

func (s *RedisRoster) ActiveOnline(ctx context.Context, q RosterQuery) ([]Driver, error) {
	hits, err := s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  q.Center.Lng,
			Latitude:   q.Center.Lat,
			Radius:     q.RadiusMiles,
			RadiusUnit: "mi",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hits))
	for i, h := range hits {
		cmds[i] = pipe.HGetAll(ctx, driverHashKey(types.ID(h.Name)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]Driver, 0, len(hits))
	for i, h := range hits {
		d := driverFromHash(types.ID(h.Name), cmds[i].Val())
		p := types.Point{Lat: h.Latitude, Lng: h.Longitude}
		d.Point = &p
		if d.Eligible() {
			out = append(out, d)
		}
	}
	return out, nil
}

func driverFromHash(id types.ID, h map[string]string) Driver {
	d := Driver{
		ID:           id,
		Name:         h["name"],
		Status:       Status(h["status"]),
		Availability: Availability(h["availability"]),
		DeviceToken:  h["device_token"],
	}
	if cab := h["cab_number"]; cab != "" {
		d.CabNumber = &cab
	}
	if ms, err := strconv.ParseInt(h["reported_at"], 10, 64); err == nil {
		d.ReportedAt = time.UnixMilli(ms).UTC()
	}
	return d
}

// Report moves the driver in the GEO set and refreshes the hash.
func (s *RedisRoster) Report(ctx context.Context, r Report) error {
	fields := map[string]any{"reported_at": r.ReportedAt.UnixMilli()}
	if r.Availability != "" {
		fields["availability"] = string(r.Availability)
	}
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(r.DriverID),
		Longitude: r.Point.Lng,
		Latitude:  r.Point.Lat,
	})
	pipe.HSet(ctx, driverHashKey(r.DriverID), fields)
	_, err := pipe.Exec(ctx)
	return err
}

// Upsert writes the driver's roster attributes. Used when syncing from the driver registry.
func (s *RedisRoster) Upsert(ctx context.Context, d Driver) error {
	fields := map[string]any{
		"name":         d.Name,
		"status":       string(d.Status),
		"availability": string(d.Availability),
		"device_token": d.DeviceToken,
		"cab_number":   "",
	}
	if d.CabNumber != nil {
		fields["cab_number"] = *d.CabNumber
	}
	return s.redis.HSet(ctx, driverHashKey(d.ID), fields).Err()
}

// Remove drops the driver from the GEO index.
func (s *RedisRoster) Remove(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (s *RedisRoster) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	tok, err := s.redis.HGet(ctx, driverHashKey(id), "device_token").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrDriverNotFound
	}
	return tok, err
}

// PostgresRoster reads the drivers table. The radius is applied as a bounding box; callers
// compute exact distances.
type PostgresRoster struct {
	db *pgxpool.Pool
}

func NewPostgresRoster(db *pgxpool.Pool) *PostgresRoster {
	return &PostgresRoster{db: db}
}

func (s *PostgresRoster) ActiveOnline(ctx context.Context, q RosterQuery) ([]Driver, error) {
	sw, ne := geo.BoundingBox(q.Center, q.RadiusMiles)
	rows, err := s.db.Query(ctx, `
		SELECT id, name, cab_number, status, availability, lat, lng, reported_at, device_token
		FROM drivers
		WHERE status = $1 AND availability = $2
		  AND lat BETWEEN $3 AND $4
		  AND lng BETWEEN $5 AND $6`,
		string(StatusActive), string(Online), sw.Lat, ne.Lat, sw.Lng, ne.Lng,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// All lists every registered driver regardless of status or position.
func (s *PostgresRoster) All(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, cab_number, status, availability, lat, lng, reported_at, device_token
		FROM drivers
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresRoster) Report(ctx context.Context, r Report) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET lat = $2, lng = $3, reported_at = $4,
		    availability = COALESCE(NULLIF($5, ''), availability)
		WHERE id = $1`,
		string(r.DriverID), r.Point.Lat, r.Point.Lng, r.ReportedAt, string(r.Availability),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

func (s *PostgresRoster) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	var tok sql.NullString
	err := s.db.QueryRow(ctx, `SELECT device_token FROM drivers WHERE id = $1`, string(id)).Scan(&tok)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrDriverNotFound
	}
	return tok.String, err
}

func scanDriver(row pgx.Row) (Driver, error) {
	var d Driver
	var cab, token sql.NullString
	var lat, lng sql.NullFloat64
	var reportedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.Name, &cab, &d.Status, &d.Availability, &lat, &lng, &reportedAt, &token); err != nil {
		return Driver{}, err
	}
	if cab.Valid {
		c := cab.String
		d.CabNumber = &c
	}
	if lat.Valid && lng.Valid {
		d.Point = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if reportedAt.Valid {
		d.ReportedAt = reportedAt.Time
	}
	d.DeviceToken = token.String
	return d, nil
}
