package estimate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/types"
)

// Sink receives session messages. Send must not block; a slow consumer should drop or
// disconnect instead.
type Sink interface {
	Send(Message)
}

// Session is the live estimate for one dispatcher form. Each Apply resolves the legs and
// then drives a distance Tracker and a driver Watcher; fares follow every distance update.
// Only results for the newest applied form state reach the sink.
type Session struct {
	svc     *Service
	sink    Sink
	tracker *distance.Tracker
	watcher *matching.Watcher
	ctx     context.Context
	stop    context.CancelFunc

	// applyMu serialises the hand-off from geocoding to tracker and watcher so their request
	// ids advance together.
	applyMu sync.Mutex

	mu        sync.Mutex
	frameSeq  uint64
	geoCancel context.CancelFunc
	applied   uint64
	req       Request
	fareSeq   uint64
	closed    bool

	geoWG  sync.WaitGroup
	fareWG sync.WaitGroup
}

func (s *Service) NewSession(sink Sink) *Session {
	ctx, stop := context.WithCancel(context.Background())
	sess := &Session{svc: s, sink: sink, ctx: ctx, stop: stop}
	sess.tracker = s.distance.NewTracker(sess)
	if s.locator != nil {
		sess.watcher = s.locator.NewWatcher(sess, 0)
	}
	return sess
}

// Apply submits a new form state. It returns immediately; geocoding from an earlier Apply
// that is still running is cancelled.
func (s *Session) Apply(req Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.geoCancel != nil {
		s.geoCancel()
	}
	s.frameSeq++
	frame := s.frameSeq
	ctx, cancel := context.WithCancel(s.ctx)
	s.geoCancel = cancel
	s.geoWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.geoWG.Done()
		defer cancel()
		s.resolve(ctx, frame, req)
	}()
}

func (s *Session) resolve(ctx context.Context, frame uint64, req Request) {
	pr, dr, advs := s.svc.geocoder.ResolveLegs(ctx, req.Pickup, req.Dropoff)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed || frame != s.frameSeq {
		s.mu.Unlock()
		s.svc.logger.Debug("discarded superseded geocoding result", zap.Uint64("frame", frame))
		return
	}
	s.applied++
	id := s.applied
	s.req = req
	s.sendLocked(MessageResolved, id, Resolved{
		Pickup:        geoPoint(pr.Point),
		Dropoff:       geoPoint(dr.Point),
		PickupSource:  pr.Source,
		DropoffSource: dr.Source,
	})
	for _, a := range advs {
		s.sendLocked(MessageAdvisory, id, a)
	}
	s.mu.Unlock()

	// Tracker and watcher call back into the session synchronously; s.mu must be free here.
	if got := s.tracker.Update(pr.Point, dr.Point); got != id {
		s.svc.logger.Warn("distance request id out of step", zap.Uint64("want", id), zap.Uint64("got", got))
	}
	if s.watcher != nil {
		s.watcher.Update(pr.Point)
	}
}

// OnDistance implements distance.Observer. A known distance triggers a fare quote; a newer
// distance supersedes any quote still in flight.
func (s *Session) OnDistance(e distance.Estimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sendLocked(MessageDistance, e.RequestID, e)

	s.fareSeq++
	if !e.Known() {
		return
	}
	token, req := s.fareSeq, s.req
	s.fareWG.Add(1)
	go func() {
		defer s.fareWG.Done()
		q, err := s.svc.pricing.Estimate(s.ctx, fareRequest(req, e.Miles))

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || token != s.fareSeq {
			return
		}
		if err != nil {
			s.sendLocked(MessageAdvisory, e.RequestID, fareAdvisory(err))
			return
		}
		s.sendLocked(MessageFare, e.RequestID, q)
	}()
}

// OnDrivers implements matching.Observer.
func (s *Session) OnDrivers(id uint64, cands []matching.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if cands == nil {
		cands = []matching.Candidate{}
	}
	s.sendLocked(MessageDrivers, id, cands)
}

// OnAdvisory serves both the tracker and the watcher.
func (s *Session) OnAdvisory(id uint64, a types.Advisory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sendLocked(MessageAdvisory, id, a)
}

func (s *Session) sendLocked(t MessageType, id uint64, payload any) {
	s.sink.Send(Message{Type: t, RequestID: id, Payload: payload, Timestamp: time.Now().UTC()})
}

// Wait blocks until all work started so far has finished.
func (s *Session) Wait() {
	s.geoWG.Wait()
	s.tracker.Wait()
	if s.watcher != nil {
		s.watcher.Wait()
	}
	s.fareWG.Wait()
}

// Close cancels everything in flight; nothing is sent afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stop()
	s.mu.Unlock()

	s.tracker.Close()
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.geoWG.Wait()
	s.fareWG.Wait()
}

func fareAdvisory(err error) types.Advisory {
	return types.Advisory{Code: "fare_unavailable", Message: err.Error()}
}
