package matching

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cabdesk/internal/types"
)

// Watcher re-runs Nearby whenever the pickup moves and publishes only the result for the
// latest pickup. Earlier lookups are cancelled; their answers are dropped on arrival.
type Watcher struct {
	locator  *Locator
	observer Observer
	radius   float64

	mu         sync.Mutex
	seq        uint64
	current    uint64
	candidates []Candidate
	cancel     context.CancelFunc
	closed     bool

	wg sync.WaitGroup
}

// NewWatcher creates a watcher using radiusMiles (0 means the locator default).
func (l *Locator) NewWatcher(observer Observer, radiusMiles float64) *Watcher {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	return &Watcher{locator: l, observer: observer, radius: radiusMiles}
}

// Update sets the pickup and returns the request id that owns the next result. A nil or
// invalid pickup publishes an empty list immediately.
func (w *Watcher) Update(pickup *types.Point) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.seq
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.seq++
	id := w.seq

	if pickup == nil || !pickup.Valid() {
		w.publishLocked(id, nil, nil)
		return id
	}

	p := *pickup
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		cands, adv := w.locator.Nearby(ctx, p, w.radius)
		w.complete(id, cands, adv)
	}()
	return id
}

func (w *Watcher) complete(id uint64, cands []Candidate, adv *types.Advisory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || id != w.seq {
		w.locator.logger.Debug("discarded superseded driver lookup",
			zap.Uint64("request_id", id),
			zap.Uint64("current_id", w.seq),
		)
		return
	}
	w.publishLocked(id, cands, adv)
}

func (w *Watcher) publishLocked(id uint64, cands []Candidate, adv *types.Advisory) {
	w.current = id
	w.candidates = cands
	w.observer.OnDrivers(id, cands)
	if adv != nil {
		w.observer.OnAdvisory(id, *adv)
	}
}

// Snapshot returns the request id and candidates last published.
func (w *Watcher) Snapshot() (uint64, []Candidate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, append([]Candidate(nil), w.candidates...)
}

func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
}
