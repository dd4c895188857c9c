// README: One-shot estimate: resolve legs, then distance, fare and nearby drivers.
package estimate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/geocoding"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

type Geocoder interface {
	ResolveLegs(ctx context.Context, pickup, dropoff geocoding.Query) (geocoding.Result, geocoding.Result, []types.Advisory)
}

type FareQuoter interface {
	Estimate(ctx context.Context, req pricing.FareRequest) (pricing.FareQuote, error)
}

type Service struct {
	geocoder Geocoder
	distance *distance.Service
	pricing  FareQuoter
	locator  *matching.Locator
	logger   *zap.Logger
}

func NewService(geocoder Geocoder, dist *distance.Service, quoter FareQuoter, locator *matching.Locator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{geocoder: geocoder, distance: dist, pricing: quoter, locator: locator, logger: logger}
}

// Estimate answers a single form state. Unresolved legs and degraded providers are
// advisories, not errors; a fare validation failure (for example an inactive flat rate) is
// returned as the error with the partial result.
func (s *Service) Estimate(ctx context.Context, req Request) (Result, error) {
	res := Result{Drivers: []matching.Candidate{}, Advisories: []types.Advisory{}}

	pr, dr, advs := s.geocoder.ResolveLegs(ctx, req.Pickup, req.Dropoff)
	res.Advisories = append(res.Advisories, advs...)
	if pr.Resolved() {
		res.Pickup = geoPoint(pr.Point)
	}
	if dr.Resolved() {
		res.Dropoff = geoPoint(dr.Point)
	}

	var wg sync.WaitGroup
	var drivers []matching.Candidate
	var driversAdv *types.Advisory
	if pr.Resolved() && s.locator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drivers, driversAdv = s.locator.Nearby(ctx, *pr.Point, req.RadiusMiles)
		}()
	}

	var fareErr error
	if pr.Resolved() && dr.Resolved() {
		est, adv := s.distance.Estimate(ctx, *pr.Point, *dr.Point)
		res.Distance = &est
		if adv != nil {
			res.Advisories = append(res.Advisories, *adv)
		}
		q, err := s.pricing.Estimate(ctx, fareRequest(req, est.Miles))
		if err != nil {
			fareErr = err
		} else {
			res.Fare = &q
		}
	}

	wg.Wait()
	if drivers != nil {
		res.Drivers = drivers
	}
	if driversAdv != nil {
		res.Advisories = append(res.Advisories, *driversAdv)
	}
	if fareErr != nil {
		s.logger.Info("fare estimate rejected", zap.Error(fareErr))
	}
	return res, fareErr
}

func fareRequest(req Request, miles float64) pricing.FareRequest {
	return pricing.FareRequest{
		Strategy:   req.strategy(),
		FlatRateID: req.FlatRateID,
		Miles:      miles,
		Passengers: req.passengers(),
	}
}

func geoPoint(p *types.Point) *types.GeoPoint {
	if p == nil {
		return nil
	}
	g := types.GeoPoint{Point: p.Normalize()}
	return &g
}
