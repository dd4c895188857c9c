// README: Geocoding resolver; manual coordinates win, otherwise provider lookup with proximity bias.
package geocoding

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cabdesk/internal/geo"
	"cabdesk/internal/types"
)

// Provider resolves free text to the best-matching point near bias.
type Provider interface {
	Geocode(ctx context.Context, address string, bias types.Point) (types.Point, bool, error)
}

var errNoProvider = errors.New("no geocoding provider configured")

type Service struct {
	provider Provider
	center   types.Point
	logger   *zap.Logger
}

// NewService builds a resolver. provider may be nil, in which case every address lookup
// degrades to an unresolved result with an advisory.
func NewService(provider Provider, center types.Point, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, center: center, logger: logger}
}

// Resolve returns the point for q. It never returns an error: provider problems yield an
// unresolved Result plus an advisory, and the caller blocks submission until both legs resolve.
func (s *Service) Resolve(ctx context.Context, q Query, bias *types.Point) (Result, *types.Advisory) {
	if p, ok := manualPoint(q); ok {
		return Result{Point: &p, Source: SourceManual}, nil
	}

	address := strings.TrimSpace(q.Address)
	if address == "" {
		return Result{Source: SourceUnresolved}, nil
	}

	b := s.center
	if bias != nil && bias.Valid() {
		b = *bias
	}

	if s.provider == nil {
		return Result{Source: SourceUnresolved}, s.advise(address, &types.ProviderError{Provider: "geocoding", Err: errNoProvider})
	}

	p, found, err := s.provider.Geocode(ctx, address, b)
	if err != nil {
		return Result{Source: SourceUnresolved}, s.advise(address, &types.ProviderError{Provider: "geocoding", Err: err})
	}
	if !found || !p.Valid() {
		return Result{Source: SourceUnresolved}, &types.Advisory{
			Code:    "geocode_no_match",
			Message: "No location found for \"" + address + "\"; enter coordinates manually.",
		}
	}
	p = p.Normalize()
	return Result{Point: &p, Source: SourceGeocoded}, nil
}

// ResolveLegs resolves pickup and dropoff concurrently. Each leg is biased toward the other
// leg's manual point when one was given, else toward the regional center.
func (s *Service) ResolveLegs(ctx context.Context, pickup, dropoff Query) (Result, Result, []types.Advisory) {
	var pickupBias, dropoffBias *types.Point
	if p, ok := manualPoint(dropoff); ok {
		pickupBias = &p
	}
	if p, ok := manualPoint(pickup); ok {
		dropoffBias = &p
	}

	var (
		wg       sync.WaitGroup
		pr, dr   Result
		pAdv, dA *types.Advisory
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pr, pAdv = s.Resolve(ctx, pickup, pickupBias)
	}()
	go func() {
		defer wg.Done()
		dr, dA = s.Resolve(ctx, dropoff, dropoffBias)
	}()
	wg.Wait()

	var advisories []types.Advisory
	for _, a := range []*types.Advisory{pAdv, dA} {
		if a != nil {
			advisories = append(advisories, *a)
		}
	}
	return pr, dr, advisories
}

func (s *Service) advise(address string, err error) *types.Advisory {
	s.logger.Warn("geocoding degraded",
		zap.String("address", address),
		zap.Error(err),
	)
	return &types.Advisory{
		Code:    "geocode_unavailable",
		Message: "Address lookup is unavailable; enter coordinates manually.",
	}
}

func manualPoint(q Query) (types.Point, bool) {
	if q.Lat == nil || q.Lng == nil {
		return types.Point{}, false
	}
	if !geo.IsFinite(*q.Lat) || !geo.IsFinite(*q.Lng) {
		return types.Point{}, false
	}
	return types.Point{Lat: *q.Lat, Lng: *q.Lng}, true
}
