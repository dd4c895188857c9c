// README: Distance estimator; straight-line provisional value refined by a routing provider.
package distance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cabdesk/internal/geo"
	"cabdesk/internal/types"
)

// DefaultRoadBuffer converts great-circle miles to an approximate road distance.
const DefaultRoadBuffer = 1.18

var errNoRouter = errors.New("no routing provider configured")

type Service struct {
	router Router
	buffer float64
	logger *zap.Logger
}

// NewService builds an estimator. router may be nil; every estimate then stays straight-line.
func NewService(router Router, roadBuffer float64, logger *zap.Logger) *Service {
	if roadBuffer < 1 {
		roadBuffer = DefaultRoadBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{router: router, buffer: roadBuffer, logger: logger}
}

// StraightLine returns the buffered great-circle estimate.
func (s *Service) StraightLine(a, b types.Point) Estimate {
	return Estimate{
		Miles:  geo.HaversineMiles(a, b) * s.buffer,
		Source: SourceStraightLine,
		Phase:  PhaseProvisional,
	}
}

// Estimate is the blocking variant used server-side when a booking is created: it computes
// the provisional value, then waits for routing under ctx. Routing problems never fail the
// call; they return the straight-line value and an advisory.
func (s *Service) Estimate(ctx context.Context, a, b types.Point) (Estimate, *types.Advisory) {
	final, adv := s.refine(ctx, a, b, s.StraightLine(a, b))
	if adv != nil {
		s.logger.Warn("routing degraded to straight-line", zap.String("advisory", adv.Message))
	}
	return final, adv
}

// refine asks the router for a driving distance and returns the Final estimate built from
// the answer, or prov promoted to Final plus an advisory when routing is unusable.
func (s *Service) refine(ctx context.Context, a, b types.Point, prov Estimate) (Estimate, *types.Advisory) {
	fallback := prov
	fallback.Phase = PhaseFinal

	if s.router == nil {
		return fallback, routingAdvisory(&types.ProviderError{Provider: "routing", Err: errNoRouter})
	}

	miles, err := s.router.DrivingMiles(ctx, a, b)
	if err != nil {
		return fallback, routingAdvisory(&types.ProviderError{Provider: "routing", Err: err})
	}
	if !geo.IsFinite(miles) || miles <= 0 {
		return fallback, routingAdvisory(&types.ProviderError{
			Provider: "routing",
			Err:      fmt.Errorf("non-positive distance %v", miles),
		})
	}
	return Estimate{RequestID: prov.RequestID, Miles: miles, Source: SourceDriving, Phase: PhaseFinal}, nil
}

func routingAdvisory(err error) *types.Advisory {
	return &types.Advisory{
		Code:    "routing_fallback",
		Message: "Driving distance unavailable; using straight-line estimate. (" + err.Error() + ")",
	}
}
