package events

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"cabdesk/internal/types"
)

// TokenSource resolves a driver's push token.
type TokenSource interface {
	DeviceToken(ctx context.Context, driverID types.ID) (string, error)
}

// messenger is the slice of *messaging.Client the notifier uses.
type messenger interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCMNotifier pushes a data message to the assigned driver's device on every assignment.
// Other event types are ignored.
type FCMNotifier struct {
	client messenger
	tokens TokenSource
	logger *zap.Logger
}

func NewFCMNotifier(client *messaging.Client, tokens TokenSource, logger *zap.Logger) *FCMNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMNotifier{client: client, tokens: tokens, logger: logger}
}

func (n *FCMNotifier) Publish(ctx context.Context, e BookingEvent) error {
	if e.Type != BookingAssigned || e.DriverID == nil {
		return nil
	}
	token, err := n.tokens.DeviceToken(ctx, *e.DriverID)
	if err != nil {
		return fmt.Errorf("device token for %s: %w", *e.DriverID, err)
	}
	if token == "" {
		return fmt.Errorf("empty device token for driver %s", *e.DriverID)
	}

	msg := newAssignmentMessage(token, e)
	id, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM for booking %s: %w", e.BookingID, err)
	}
	n.logger.Info("assignment push sent",
		zap.String("booking_id", string(e.BookingID)),
		zap.String("driver_id", string(*e.DriverID)),
		zap.String("message_id", id),
	)
	return nil
}

func newAssignmentMessage(token string, e BookingEvent) *messaging.Message {
	data := map[string]string{
		"type":        "booking_assigned",
		"booking_id":  string(e.BookingID),
		"pickup_lat":  strconv.FormatFloat(e.Pickup.Lat, 'f', 6, 64),
		"pickup_lng":  strconv.FormatFloat(e.Pickup.Lng, 'f', 6, 64),
		"dropoff_lat": strconv.FormatFloat(e.Dropoff.Lat, 'f', 6, 64),
		"dropoff_lng": strconv.FormatFloat(e.Dropoff.Lng, 'f', 6, 64),
	}
	body := "New booking assigned"
	if e.EstimatedFare != nil {
		data["estimated_fare"] = e.EstimatedFare.String()
		body = fmt.Sprintf("New booking, estimated fare $%s", e.EstimatedFare.String())
	}
	if e.CabNumber != nil {
		data["cab_number"] = *e.CabNumber
	}
	return &messaging.Message{
		Token: token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: "Booking assigned",
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
