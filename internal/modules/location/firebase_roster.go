// README: Driver roster read from Firebase RTDB (/driver_locations, written by the driver app).
package location

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"cabdesk/internal/types"
)

const driverLocationsRef = "driver_locations"

// rtdbDriverEntry mirrors one child of /driver_locations.
type rtdbDriverEntry struct {
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Status      string   `json:"status"`
	Active      bool     `json:"active"`
	Name        string   `json:"name"`
	CabNumber   string   `json:"cab_number"`
	DeviceToken string   `json:"device_token"`
	Timestamp   int64    `json:"timestamp"`
}

// FirebaseRoster queries drivers the app has marked online. RTDB has no geo index, so the
// radius is left to the caller.
type FirebaseRoster struct {
	client *db.Client
}

func NewFirebaseRoster(client *db.Client) *FirebaseRoster {
	return &FirebaseRoster{client: client}
}

func (s *FirebaseRoster) queryOnlineDrivers(ctx context.Context) (map[string]rtdbDriverEntry, error) {
	ref := s.client.NewRef(driverLocationsRef)

	var data map[string]rtdbDriverEntry
	if err := ref.OrderByChild("status").EqualTo(string(Online)).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("querying online drivers: %w", err)
	}
	return data, nil
}

func (s *FirebaseRoster) ActiveOnline(ctx context.Context, _ RosterQuery) ([]Driver, error) {
	data, err := s.queryOnlineDrivers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Driver, 0, len(data))
	for id, e := range data {
		if !e.Active {
			continue
		}
		out = append(out, e.toDriver(types.ID(id)))
	}
	return out, nil
}

func (e rtdbDriverEntry) toDriver(id types.ID) Driver {
	d := Driver{
		ID:           id,
		Name:         e.Name,
		Status:       StatusActive,
		Availability: Availability(e.Status),
		DeviceToken:  e.DeviceToken,
	}
	if !e.Active {
		d.Status = StatusInactive
	}
	if e.CabNumber != "" {
		cab := e.CabNumber
		d.CabNumber = &cab
	}
	if e.Lat != nil && e.Lng != nil {
		d.Point = &types.Point{Lat: *e.Lat, Lng: *e.Lng}
	}
	if e.Timestamp > 0 {
		d.ReportedAt = time.UnixMilli(e.Timestamp).UTC()
	}
	return d
}

// Report writes the ping under /driver_locations/{id}, leaving other children untouched.
func (s *FirebaseRoster) Report(ctx context.Context, r Report) error {
	update := map[string]any{
		"lat":       r.Point.Lat,
		"lng":       r.Point.Lng,
		"timestamp": r.ReportedAt.UnixMilli(),
	}
	if r.Availability != "" {
		update["status"] = string(r.Availability)
	}
	return s.client.NewRef(driverLocationsRef).Child(string(r.DriverID)).Update(ctx, update)
}

func (s *FirebaseRoster) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	var tok string
	if err := s.client.NewRef(driverLocationsRef).Child(string(id)).Child("device_token").Get(ctx, &tok); err != nil {
		return "", err
	}
	if tok == "" {
		return "", ErrDriverNotFound
	}
	return tok, nil
}
