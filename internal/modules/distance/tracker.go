package distance

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cabdesk/internal/types"
)

// Tracker owns the shared distance estimate for one logical target (for example a
// dispatcher's booking form). Every Update issues a new request id, cancels the routing call
// of the previous one and publishes a provisional value; only the routing answer for the
// current id may promote it to Final.
type Tracker struct {
	svc      *Service
	observer Observer

	mu      sync.Mutex
	seq     uint64
	current Estimate
	cancel  context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

// NewTracker creates a tracker in the Unknown phase. observer may be nil.
func (s *Service) NewTracker(observer Observer) *Tracker {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	return &Tracker{svc: s, observer: observer}
}

// Update sets the trip endpoints and returns the request id that now owns the estimate.
// A nil or invalid endpoint moves the estimate back to Unknown. Update never blocks on the
// routing provider.
func (t *Tracker) Update(pickup, dropoff *types.Point) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.seq
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.seq++
	id := t.seq

	if pickup == nil || dropoff == nil || !pickup.Valid() || !dropoff.Valid() {
		t.commitLocked(Estimate{RequestID: id, Phase: PhaseUnknown})
		return id
	}

	a, b := *pickup, *dropoff
	prov := t.svc.StraightLine(a, b)
	prov.RequestID = id
	t.commitLocked(prov)

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		final, adv := t.svc.refine(ctx, a, b, prov)
		t.complete(final, adv)
	}()
	return id
}

// complete applies the routing outcome if its request id is still current.
func (t *Tracker) complete(final Estimate, adv *types.Advisory) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.commitLocked(final) {
		t.svc.logger.Debug("discarded superseded distance response",
			zap.Uint64("request_id", final.RequestID),
			zap.Uint64("current_id", t.seq),
		)
		return
	}
	if adv != nil {
		t.svc.logger.Warn("routing degraded to straight-line",
			zap.Uint64("request_id", final.RequestID),
			zap.String("advisory", adv.Message),
		)
		t.observer.OnAdvisory(final.RequestID, *adv)
	}
}

// commitLocked writes next when it belongs to the current request and does not move the
// phase backwards. It reports whether the write happened. Caller holds t.mu.
func (t *Tracker) commitLocked(next Estimate) bool {
	if t.closed || next.RequestID != t.seq {
		return false
	}
	if t.current.RequestID == next.RequestID && t.current.Phase > next.Phase {
		return false
	}
	t.current = next
	t.observer.OnDistance(next)
	return true
}

// Snapshot returns the estimate currently owned by the latest request.
func (t *Tracker) Snapshot() Estimate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Wait blocks until every routing goroutine started so far has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close cancels in-flight routing and stops publishing. It waits for goroutines to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
	t.wg.Wait()
}
