// README: Booking lifecycle events and the observers that receive them.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cabdesk/internal/types"
)

type Type string

const (
	BookingCreated        Type = "booking.created"
	BookingUpdated        Type = "booking.updated"
	BookingAssigned       Type = "booking.assigned"
	BookingDispatchFailed Type = "booking.dispatch_failed"
	BookingStatusChanged  Type = "booking.status_changed"
)

// BookingEvent is published after a booking mutation has been persisted.
type BookingEvent struct {
	ID                string       `json:"id"`
	Type              Type         `json:"type"`
	BookingID         types.ID     `json:"booking_id"`
	FromStatus        string       `json:"from_status,omitempty"`
	Status            string       `json:"status"`
	DriverID          *types.ID    `json:"driver_id,omitempty"`
	CabNumber         *string      `json:"cab_number,omitempty"`
	NeedsReassignment bool         `json:"needs_reassignment"`
	Pickup            types.Point  `json:"pickup"`
	Dropoff           types.Point  `json:"dropoff"`
	EstimatedFare     *types.Money `json:"estimated_fare,omitempty"`
	Reason            *string      `json:"reason,omitempty"`
	OccurredAt        time.Time    `json:"occurred_at"`
}

// Observer receives booking events. A failing observer never fails the mutation that
// produced the event.
type Observer interface {
	Publish(ctx context.Context, e BookingEvent) error
}

// Fanout delivers each event to every observer in registration order.
type Fanout struct {
	observers []Observer
	logger    *zap.Logger
}

func NewFanout(logger *zap.Logger, observers ...Observer) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{observers: observers, logger: logger}
}

// Add registers another observer. Not safe to call concurrently with Publish.
func (f *Fanout) Add(o Observer) {
	f.observers = append(f.observers, o)
}

// Publish always returns nil; per-observer failures are logged.
func (f *Fanout) Publish(ctx context.Context, e BookingEvent) error {
	for _, o := range f.observers {
		if err := o.Publish(ctx, e); err != nil {
			f.logger.Warn("booking event delivery failed",
				zap.String("event", string(e.Type)),
				zap.String("booking_id", string(e.BookingID)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// LogObserver writes every event to the structured log.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) Publish(_ context.Context, e BookingEvent) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("booking_id", string(e.BookingID)),
		zap.String("status", e.Status),
		zap.Bool("needs_reassignment", e.NeedsReassignment),
	}
	if e.DriverID != nil {
		fields = append(fields, zap.String("driver_id", string(*e.DriverID)))
	}
	if e.Type == BookingDispatchFailed {
		l.logger.Warn("auto dispatch found no eligible driver", fields...)
		return nil
	}
	l.logger.Info("booking event", fields...)
	return nil
}
