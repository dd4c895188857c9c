// README: Location service accepts driver position pings and drops stale ones.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cabdesk/internal/types"
)

type Service struct {
	reporter Reporter
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSeen map[types.ID]time.Time
}

func NewService(reporter Reporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
		lastSeen: make(map[types.ID]time.Time),
	}
}

// ReportLocation stores a driver ping. Pings older than the last accepted one for the same
// driver are ignored so a delayed packet cannot move the driver backwards.
func (s *Service) ReportLocation(ctx context.Context, r Report) (ReportResult, error) {
	if r.DriverID == "" {
		return ReportResult{}, types.NewValidationError("driver_id", "is required")
	}
	if !r.Point.Valid() {
		return ReportResult{}, types.NewValidationError("point", "must be a finite coordinate")
	}
	switch r.Availability {
	case "", Online, Offline:
	default:
		return ReportResult{}, types.NewValidationError("availability", "must be online or offline")
	}
	if r.ReportedAt.IsZero() {
		r.ReportedAt = s.now()
	}
	r.ReportedAt = r.ReportedAt.UTC()
	r.Point = r.Point.Normalize()

	s.mu.Lock()
	if last, ok := s.lastSeen[r.DriverID]; ok && !r.ReportedAt.After(last) {
		s.mu.Unlock()
		return ReportResult{Accepted: false, Reason: "stale"}, nil
	}
	s.lastSeen[r.DriverID] = r.ReportedAt
	s.mu.Unlock()

	if err := s.reporter.Report(ctx, r); err != nil {
		s.forget(r.DriverID, r.ReportedAt)
		if errors.Is(err, ErrDriverNotFound) {
			return ReportResult{}, err
		}
		s.logger.Error("store driver location failed", zap.String("driver_id", string(r.DriverID)), zap.Error(err))
		return ReportResult{}, types.NewPersistenceError("report location", err)
	}
	return ReportResult{Accepted: true}, nil
}

// forget rolls back lastSeen if it still holds at.
func (s *Service) forget(id types.ID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeen[id].Equal(at) {
		delete(s.lastSeen, id)
	}
}
