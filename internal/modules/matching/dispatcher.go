package matching

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cabdesk/internal/types"
)

// BusyLookup reports drivers already holding a non-terminal booking.
type BusyLookup interface {
	BusyDrivers(ctx context.Context) (map[types.ID]bool, error)
}

// AutoDispatcher picks a driver for a booking without operator input.
type AutoDispatcher struct {
	locator *Locator
	busy    BusyLookup
	logger  *zap.Logger
}

func NewAutoDispatcher(locator *Locator, busy BusyLookup, logger *zap.Logger) *AutoDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoDispatcher{locator: locator, busy: busy, logger: logger}
}

// Pick returns the closest free driver with a cab anywhere inside the locator radius; the
// display cap does not apply. ok is false when nobody qualifies, which is a normal outcome,
// not an error.
func (d *AutoDispatcher) Pick(ctx context.Context, pickup types.Point) (c Candidate, ok bool, err error) {
	cands, adv := d.locator.candidates(ctx, pickup, 0)
	if adv != nil {
		d.logger.Warn("auto dispatch without roster", zap.String("advisory", adv.Code))
		return Candidate{}, false, nil
	}
	if len(cands) == 0 {
		return Candidate{}, false, nil
	}

	busy := map[types.ID]bool{}
	if d.busy != nil {
		if busy, err = d.busy.BusyDrivers(ctx); err != nil {
			return Candidate{}, false, fmt.Errorf("load busy drivers: %w", err)
		}
	}
	for _, cand := range cands {
		if cand.CabNumber == nil || *cand.CabNumber == "" || busy[cand.DriverID] {
			continue
		}
		return cand, true, nil
	}
	return Candidate{}, false, nil
}
