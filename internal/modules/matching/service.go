// README: Locator ranks eligible drivers around a pickup point.
package matching

import (
	"context"

	"go.uber.org/zap"

	"cabdesk/internal/geo"
	"cabdesk/internal/modules/location"
	"cabdesk/internal/types"
)

const advisoryRosterUnavailable = "roster_unavailable"

type Locator struct {
	roster location.Roster
	radius float64
	max    int
	logger *zap.Logger
}

// NewLocator builds a locator. Non-positive radius or max fall back to the defaults.
func NewLocator(roster location.Roster, radiusMiles float64, max int, logger *zap.Logger) *Locator {
	if radiusMiles <= 0 || !geo.IsFinite(radiusMiles) {
		radiusMiles = DefaultRadiusMiles
	}
	if max <= 0 {
		max = MaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{roster: roster, radius: radiusMiles, max: max, logger: logger}
}

// Radius is the radius used when a call does not supply one.
func (l *Locator) Radius() float64 { return l.radius }

// Nearby returns at most max eligible drivers within radiusMiles of pickup, closest first.
// A roster failure yields an empty list and an advisory rather than an error.
func (l *Locator) Nearby(ctx context.Context, pickup types.Point, radiusMiles float64) ([]Candidate, *types.Advisory) {
	out, adv := l.candidates(ctx, pickup, radiusMiles)
	if len(out) > l.max {
		out = out[:l.max]
	}
	return out, adv
}

// candidates is Nearby without the display cap.
func (l *Locator) candidates(ctx context.Context, pickup types.Point, radiusMiles float64) ([]Candidate, *types.Advisory) {
	if radiusMiles <= 0 || !geo.IsFinite(radiusMiles) {
		radiusMiles = l.radius
	}
	if l.roster == nil {
		return nil, &types.Advisory{Code: advisoryRosterUnavailable, Message: "driver roster is not configured"}
	}

	drivers, err := l.roster.ActiveOnline(ctx, location.RosterQuery{Center: pickup, RadiusMiles: radiusMiles})
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("roster query failed", zap.Error(err))
		}
		return nil, &types.Advisory{Code: advisoryRosterUnavailable, Message: "nearby drivers could not be loaded"}
	}

	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.Eligible() || d.Point == nil || !d.Point.Valid() {
			continue
		}
		dist := geo.HaversineMiles(pickup, *d.Point)
		if dist > radiusMiles {
			continue
		}
		out = append(out, Candidate{
			DriverID:       d.ID,
			Name:           d.Name,
			CabNumber:      d.CabNumber,
			Location:       *d.Point,
			LastReportedAt: d.ReportedAt,
			DistanceMiles:  dist,
		})
	}

	geo.SortByDistance(out, func(c Candidate) float64 { return c.DistanceMiles })
	return out, nil
}
