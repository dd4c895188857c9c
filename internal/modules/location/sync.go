package location

import (
	"context"
	"fmt"

	"cabdesk/internal/types"
)

// Registry lists every known driver.
type Registry interface {
	All(ctx context.Context) ([]Driver, error)
}

type rosterWriter interface {
	Upsert(ctx context.Context, d Driver) error
	Report(ctx context.Context, r Report) error
	Remove(ctx context.Context, id types.ID) error
}

// SyncRoster copies the driver registry into a position roster. Drivers that are not
// active, or never reported a position, are dropped from the position index. It returns the
// number of drivers left searchable.
func SyncRoster(ctx context.Context, src Registry, dst rosterWriter) (int, error) {
	drivers, err := src.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list drivers: %w", err)
	}
	indexed := 0
	for _, d := range drivers {
		if err := dst.Upsert(ctx, d); err != nil {
			return indexed, fmt.Errorf("upsert %s: %w", d.ID, err)
		}
		if d.Status != StatusActive || d.Point == nil || !d.Point.Valid() {
			if err := dst.Remove(ctx, d.ID); err != nil {
				return indexed, fmt.Errorf("remove %s: %w", d.ID, err)
			}
			continue
		}
		if err := dst.Report(ctx, Report{DriverID: d.ID, Point: *d.Point, ReportedAt: d.ReportedAt}); err != nil {
			return indexed, fmt.Errorf("position %s: %w", d.ID, err)
		}
		indexed++
	}
	return indexed, nil
}
