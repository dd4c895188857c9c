// README: Booking service implements creation, assignment and status transitions.
package booking

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cabdesk/internal/events"
	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/geocoding"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("booking not found")
	ErrConflict     = errors.New("booking state conflict")
)

type Geocoder interface {
	ResolveLegs(ctx context.Context, pickup, dropoff geocoding.Query) (geocoding.Result, geocoding.Result, []types.Advisory)
}

type DistanceEstimator interface {
	Estimate(ctx context.Context, a, b types.Point) (distance.Estimate, *types.Advisory)
}

type FareQuoter interface {
	Estimate(ctx context.Context, req pricing.FareRequest) (pricing.FareQuote, error)
	CloseTrip(ctx context.Context, operator types.ID, m pricing.TripMetrics) (pricing.FareQuote, error)
}

type Dispatcher interface {
	Pick(ctx context.Context, pickup types.Point) (matching.Candidate, bool, error)
}

type Deps struct {
	Store      Repository
	Geocoder   Geocoder
	Distance   DistanceEstimator
	Pricing    FareQuoter
	Dispatcher Dispatcher
	Events     events.Observer
	Currency   string
	Logger     *zap.Logger
}

type Service struct {
	store      Repository
	geocoder   Geocoder
	distance   DistanceEstimator
	pricing    FareQuoter
	dispatcher Dispatcher
	events     events.Observer
	currency   string
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.NewFanout(d.Logger)
	}
	if d.Currency == "" {
		d.Currency = types.DefaultCurrency
	}
	return &Service{
		store:      d.Store,
		geocoder:   d.Geocoder,
		distance:   d.Distance,
		pricing:    d.Pricing,
		dispatcher: d.Dispatcher,
		events:     d.Events,
		currency:   d.Currency,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateCommand struct {
	Pickup     geocoding.Query
	Dropoff    geocoding.Query
	Passengers int
	Strategy   pricing.Strategy
	FlatRateID types.ID
	Notes      *string
	// Dispatch, when set, assigns the booking right after it is created.
	Dispatch *AssignCommand
}

type UpdateCommand struct {
	BookingID  types.ID
	Pickup     *geocoding.Query
	Dropoff    *geocoding.Query
	Passengers *int
	Strategy   *pricing.Strategy
	FlatRateID *types.ID
	Notes      *string
}

type AssignCommand struct {
	BookingID types.ID
	Method    DispatchMethod
	DriverID  types.ID
	CabNumber string
	ActorID   *types.ID
}

type StatusCommand struct {
	BookingID types.ID
	To        Status
	Reason    *string
	Fee       *float64
	// Trip carries live-meter readings; used to price a completed meter booking.
	Trip    *pricing.TripMetrics
	ActorID *types.ID
}

// Create resolves both legs, estimates distance and fare, and stores a Pending booking.
// Advisories from degraded providers are returned alongside the booking.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, []types.Advisory, error) {
	if cmd.Passengers == 0 {
		cmd.Passengers = 1
	}
	if cmd.Passengers < 0 {
		return nil, nil, types.NewValidationError("passengers", "must be at least 1")
	}
	if cmd.Strategy == "" {
		cmd.Strategy = pricing.StrategyMeter
	}
	if !cmd.Strategy.Valid() {
		return nil, nil, types.NewValidationError("fare_strategy", "must be meter or flat")
	}
	if cmd.Dispatch != nil {
		if err := validateAssign(*cmd.Dispatch); err != nil {
			return nil, nil, err
		}
	}

	now := s.now()
	b := &Booking{
		ID:             types.ID(uuid.NewString()),
		Status:         StatusPending,
		PickupAddress:  strings.TrimSpace(cmd.Pickup.Address),
		DropoffAddress: strings.TrimSpace(cmd.Dropoff.Address),
		Passengers:     cmd.Passengers,
		Notes:          cmd.Notes,
		FareStrategy:   cmd.Strategy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cmd.FlatRateID != "" {
		id := cmd.FlatRateID
		b.FlatRateID = &id
	}

	advs, err := s.resolve(ctx, b, cmd.Pickup, cmd.Dropoff)
	if err != nil {
		return nil, advs, err
	}
	more, err := s.quote(ctx, b)
	advs = append(advs, more...)
	if err != nil {
		return nil, advs, err
	}

	if err := s.store.Create(ctx, b); err != nil {
		s.logger.Error("create booking failed", zap.Error(err))
		return nil, advs, types.NewPersistenceError("create booking", err)
	}
	s.record(ctx, b, "created", StatusNone, nil, nil)
	s.publish(ctx, events.BookingCreated, b, StatusNone, nil)

	if cmd.Dispatch != nil {
		a := *cmd.Dispatch
		a.BookingID = b.ID
		assigned, dispatchAdvs, err := s.Assign(ctx, a)
		if err != nil {
			return b, advs, err
		}
		b = assigned
		advs = append(advs, dispatchAdvs...)
	}
	return b, advs, nil
}

// Update applies a partial edit. Changing a leg, the passenger count or the fare strategy
// re-estimates distance and fare.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Booking, []types.Advisory, error) {
	b, err := s.get(ctx, cmd.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if !b.Status.Assignable() {
		return nil, nil, ErrInvalidState
	}

	var advs []types.Advisory
	if cmd.Pickup != nil || cmd.Dropoff != nil {
		p, d := storedQuery(b.PickupAddress, b.Pickup), storedQuery(b.DropoffAddress, b.Dropoff)
		if cmd.Pickup != nil {
			p = *cmd.Pickup
			b.PickupAddress = strings.TrimSpace(p.Address)
		}
		if cmd.Dropoff != nil {
			d = *cmd.Dropoff
			b.DropoffAddress = strings.TrimSpace(d.Address)
		}
		if advs, err = s.resolve(ctx, b, p, d); err != nil {
			return nil, advs, err
		}
	}
	requote := cmd.Pickup != nil || cmd.Dropoff != nil
	if cmd.Passengers != nil {
		if *cmd.Passengers < 1 {
			return nil, advs, types.NewValidationError("passengers", "must be at least 1")
		}
		b.Passengers = *cmd.Passengers
		requote = true
	}
	if cmd.Strategy != nil {
		if !cmd.Strategy.Valid() {
			return nil, advs, types.NewValidationError("fare_strategy", "must be meter or flat")
		}
		b.FareStrategy = *cmd.Strategy
		requote = true
	}
	if cmd.FlatRateID != nil {
		id := *cmd.FlatRateID
		b.FlatRateID = &id
		requote = true
	}
	if cmd.Notes != nil {
		b.Notes = cmd.Notes
	}
	if requote {
		more, err := s.quote(ctx, b)
		advs = append(advs, more...)
		if err != nil {
			return nil, advs, err
		}
	}

	from := b.Status
	if err := s.save(ctx, b); err != nil {
		return nil, advs, err
	}
	s.record(ctx, b, "updated", from, nil, nil)
	s.publish(ctx, events.BookingUpdated, b, from, nil)
	return b, advs, nil
}

// Assign gives the booking a driver and cab. A failed auto dispatch is not an error: the
// booking keeps its status and is flagged NeedsReassignment.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Booking, []types.Advisory, error) {
	if err := validateAssign(cmd); err != nil {
		return nil, nil, err
	}
	driverID, cab := cmd.DriverID, strings.TrimSpace(cmd.CabNumber)

	b, err := s.get(ctx, cmd.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if !b.Status.Assignable() {
		return nil, nil, ErrInvalidState
	}

	if cmd.Method == DispatchAuto {
		cand, ok, err := s.pick(ctx, b.Pickup)
		if err != nil {
			return nil, nil, types.NewPersistenceError("auto dispatch", err)
		}
		if !ok {
			b, err := s.dispatchFailed(ctx, b, cmd.ActorID)
			if err != nil {
				return nil, nil, err
			}
			return b, []types.Advisory{noEligibleDriver(b)}, nil
		}
		driverID, cab = cand.DriverID, *cand.CabNumber
	}

	from := b.Status
	now := s.now()
	method := cmd.Method
	b.Status = StatusAssigned
	b.DispatchMethod = &method
	b.DriverID = &driverID
	b.CabNumber = &cab
	b.NeedsReassignment = false
	b.AssignedAt = &now
	if err := s.save(ctx, b); err != nil {
		return nil, nil, err
	}
	s.logger.Info("booking assigned",
		zap.String("booking_id", string(b.ID)),
		zap.String("driver_id", string(driverID)),
		zap.String("method", string(method)),
	)
	s.record(ctx, b, "assigned", from, cmd.ActorID, nil)
	s.publish(ctx, events.BookingAssigned, b, from, nil)
	return b, nil, nil
}

func validateAssign(cmd AssignCommand) error {
	if !cmd.Method.Valid() {
		return types.NewValidationError("dispatch_method", "must be auto or manual")
	}
	if cmd.Method == DispatchManual {
		if cmd.DriverID == "" {
			return types.NewValidationError("driver_id", "is required for manual dispatch")
		}
		if strings.TrimSpace(cmd.CabNumber) == "" {
			return types.NewValidationError("cab_number", "is required for manual dispatch")
		}
	}
	return nil
}

func (s *Service) pick(ctx context.Context, pickup types.Point) (matching.Candidate, bool, error) {
	if s.dispatcher == nil {
		return matching.Candidate{}, false, nil
	}
	return s.dispatcher.Pick(ctx, pickup)
}

// dispatchFailed handles an auto dispatch that found nobody. A booking that already has a
// driver keeps it and is left unchanged; an unassigned one joins the reassignment queue.
func (s *Service) dispatchFailed(ctx context.Context, b *Booking, actor *types.ID) (*Booking, error) {
	if b.DriverID != nil {
		s.logger.Info("auto re-dispatch found no other driver; keeping current assignment",
			zap.String("booking_id", string(b.ID)),
			zap.String("driver_id", string(*b.DriverID)),
		)
		return b, nil
	}
	b.NeedsReassignment = true
	if err := s.save(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Warn("auto dispatch found no eligible driver", zap.String("booking_id", string(b.ID)))
	s.record(ctx, b, "dispatch_failed", b.Status, actor, nil)
	s.publish(ctx, events.BookingDispatchFailed, b, b.Status, nil)
	return b, nil
}

func noEligibleDriver(b *Booking) types.Advisory {
	if b.NeedsReassignment {
		return types.Advisory{Code: "no_eligible_driver", Message: "no eligible driver was found; the booking needs reassignment"}
	}
	return types.Advisory{Code: "no_eligible_driver", Message: "no other eligible driver was found; the current assignment is kept"}
}

// ChangeStatus moves the booking along the status flow. Completing a meter booking with
// trip readings prices it from the live meter; a flat booking keeps its flat amount.
func (s *Service) ChangeStatus(ctx context.Context, cmd StatusCommand) (*Booking, error) {
	if !cmd.To.Known() {
		return nil, types.NewValidationError("status", "unknown status "+string(cmd.To))
	}
	if cmd.To == StatusAssigned {
		return nil, types.NewValidationError("status", "use assignment to assign a driver")
	}
	if cmd.Fee != nil && (math.IsNaN(*cmd.Fee) || math.IsInf(*cmd.Fee, 0) || *cmd.Fee < 0) {
		return nil, types.NewValidationError("fee", "must be a non-negative number")
	}

	b, err := s.get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, cmd.To) {
		return nil, ErrInvalidState
	}

	if cmd.To == StatusCompleted {
		fare, err := s.finalFare(ctx, b, cmd.Trip)
		if err != nil {
			return nil, err
		}
		b.FinalFare = fare
	}

	from := b.Status
	b.Status = cmd.To
	if r := trimmed(cmd.Reason); r != nil {
		b.StatusReason = r
	}
	if cmd.Fee != nil {
		fee := types.MoneyFromFloat(*cmd.Fee, s.currency)
		b.StatusFee = &fee
	}
	if b.Status.IsTerminal() {
		now := s.now()
		b.ClosedAt = &now
		b.NeedsReassignment = false
	}
	if err := s.save(ctx, b); err != nil {
		return nil, err
	}
	s.record(ctx, b, "status_changed", from, cmd.ActorID, b.StatusReason)
	s.publish(ctx, events.BookingStatusChanged, b, from, b.StatusReason)
	return b, nil
}

func (s *Service) finalFare(ctx context.Context, b *Booking, trip *pricing.TripMetrics) (*types.Money, error) {
	if b.FareStrategy == pricing.StrategyFlat || trip == nil {
		return b.EstimatedFare, nil
	}
	m := *trip
	if m.Passengers == 0 {
		m.Passengers = b.Passengers
	}
	q, err := s.pricing.CloseTrip(ctx, "", m)
	if err != nil {
		return nil, err
	}
	return &q.Amount, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.get(ctx, id)
}

// ListNeedingReassignment returns open bookings whose auto dispatch failed.
func (s *Service) ListNeedingReassignment(ctx context.Context) ([]*Booking, error) {
	list, err := s.store.ListNeedingReassignment(ctx)
	if err != nil {
		return nil, types.NewPersistenceError("list bookings", err)
	}
	return list, nil
}

func (s *Service) get(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, types.NewPersistenceError("load booking", err)
	}
	return b, nil
}

// resolve fills both points. A leg without coordinates blocks the submission.
func (s *Service) resolve(ctx context.Context, b *Booking, p, d geocoding.Query) ([]types.Advisory, error) {
	pr, dr, advs := s.geocoder.ResolveLegs(ctx, p, d)
	if err := checkLeg("pickup", pr); err != nil {
		return advs, err
	}
	if err := checkLeg("dropoff", dr); err != nil {
		return advs, err
	}
	b.Pickup, b.Dropoff = pr.Point.Normalize(), dr.Point.Normalize()
	return advs, nil
}

func checkLeg(field string, r geocoding.Result) error {
	if !r.Resolved() {
		return types.NewValidationError(field, "coordinates are required and the address could not be resolved")
	}
	if !r.Point.Valid() {
		return types.NewValidationError(field, "latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	return nil
}

// quote re-estimates distance and fare. A flat booking never carries a meter fare.
func (s *Service) quote(ctx context.Context, b *Booking) ([]types.Advisory, error) {
	var advs []types.Advisory
	est, adv := s.distance.Estimate(ctx, b.Pickup, b.Dropoff)
	if adv != nil {
		advs = append(advs, *adv)
	}
	b.DistanceMiles, b.DistanceSource = est.Miles, est.Source

	req := pricing.FareRequest{Strategy: b.FareStrategy, Miles: est.Miles, Passengers: b.Passengers}
	if b.FareStrategy == pricing.StrategyFlat && b.FlatRateID != nil {
		req.FlatRateID = *b.FlatRateID
	}
	q, err := s.pricing.Estimate(ctx, req)
	if err != nil {
		return advs, err
	}
	amt := q.Amount
	b.EstimatedFare = &amt
	if b.FareStrategy == pricing.StrategyMeter {
		b.FlatRateID = nil
	}
	return advs, nil
}

func (s *Service) save(ctx context.Context, b *Booking) error {
	expected := b.StatusVersion
	b.UpdatedAt = s.now()
	ok, err := s.store.Save(ctx, b, expected)
	if err != nil {
		s.logger.Error("save booking failed", zap.String("booking_id", string(b.ID)), zap.Error(err))
		return types.NewPersistenceError("save booking", err)
	}
	if !ok {
		return ErrConflict
	}
	b.StatusVersion = expected + 1
	return nil
}

func (s *Service) record(ctx context.Context, b *Booking, kind string, from Status, actor *types.ID, reason *string) {
	actorType := "dispatcher"
	if actor == nil {
		actorType = "system"
	}
	err := s.store.AppendEvent(ctx, &Event{
		BookingID:  b.ID,
		Kind:       kind,
		FromStatus: from,
		ToStatus:   b.Status,
		ActorType:  actorType,
		ActorID:    actor,
		Reason:     reason,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("append booking event failed", zap.String("booking_id", string(b.ID)), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, b *Booking, from Status, reason *string) {
	e := events.BookingEvent{
		ID:                uuid.NewString(),
		Type:              t,
		BookingID:         b.ID,
		Status:            string(b.Status),
		DriverID:          b.DriverID,
		CabNumber:         b.CabNumber,
		NeedsReassignment: b.NeedsReassignment,
		Pickup:            b.Pickup,
		Dropoff:           b.Dropoff,
		EstimatedFare:     b.EstimatedFare,
		Reason:            reason,
		OccurredAt:        s.now(),
	}
	if from != StatusNone && from != b.Status {
		e.FromStatus = string(from)
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish booking event failed", zap.String("booking_id", string(b.ID)), zap.Error(err))
	}
}

func storedQuery(address string, p types.Point) geocoding.Query {
	lat, lng := p.Lat, p.Lng
	return geocoding.Query{Address: address, Lat: &lat, Lng: &lng}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
