package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cabdesk/internal/types"
)

type captureObserver struct {
	mu     sync.Mutex
	events []BookingEvent
	err    error
}

func (c *captureObserver) Publish(_ context.Context, e BookingEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func sampleEvent(t Type) BookingEvent {
	driver := types.ID("drv-1")
	cab := "C-12"
	fare := types.Money{Amount: 1550, Currency: "USD"}
	return BookingEvent{
		ID:            "evt-1",
		Type:          t,
		BookingID:     "bk-1",
		Status:        "assigned",
		DriverID:      &driver,
		CabNumber:     &cab,
		Pickup:        types.Point{Lat: 28.291956, Lng: -81.407571},
		Dropoff:       types.Point{Lat: 28.4312, Lng: -81.3081},
		EstimatedFare: &fare,
		OccurredAt:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestFanout_ContinuesPastFailingObserver(t *testing.T) {
	bad := &captureObserver{err: errors.New("broker down")}
	good := &captureObserver{}
	f := NewFanout(nil, bad)
	f.Add(good)

	require.NoError(t, f.Publish(context.Background(), sampleEvent(BookingCreated)))
	assert.Len(t, bad.events, 1)
	assert.Len(t, good.events, 1)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByBooking(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), sampleEvent(BookingAssigned)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "bk-1", string(w.msgs[0].Key))
	assert.Equal(t, "booking.assigned", string(w.msgs[0].Headers[0].Value))

	var got BookingEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, BookingAssigned, got.Type)
	assert.Equal(t, int64(1550), got.EstimatedFare.Amount)
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestRabbitPublisher_RoutingKey(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{exchange: "booking_topic", ch: ch}

	require.NoError(t, p.Publish(context.Background(), sampleEvent(BookingDispatchFailed)))
	assert.Equal(t, "booking_topic", ch.exchange)
	assert.Equal(t, "booking.dispatch_failed", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
}

type fakeMessenger struct {
	sent []*messaging.Message
}

func (m *fakeMessenger) Send(_ context.Context, msg *messaging.Message) (string, error) {
	m.sent = append(m.sent, msg)
	return "projects/x/messages/1", nil
}

type tokenMap map[types.ID]string

func (t tokenMap) DeviceToken(_ context.Context, id types.ID) (string, error) {
	return t[id], nil
}

func TestFCMNotifier_OnlyAssignments(t *testing.T) {
	m := &fakeMessenger{}
	n := &FCMNotifier{client: m, tokens: tokenMap{"drv-1": "tok-abc"}, logger: zap.NewNop()}

	ctx := context.Background()
	require.NoError(t, n.Publish(ctx, sampleEvent(BookingCreated)))
	assert.Empty(t, m.sent)

	require.NoError(t, n.Publish(ctx, sampleEvent(BookingAssigned)))
	require.Len(t, m.sent, 1)
	assert.Equal(t, "tok-abc", m.sent[0].Token)
	assert.Equal(t, "bk-1", m.sent[0].Data["booking_id"])
	assert.Equal(t, "15.50", m.sent[0].Data["estimated_fare"])
	assert.Equal(t, "C-12", m.sent[0].Data["cab_number"])
}

func TestFCMNotifier_MissingToken(t *testing.T) {
	n := &FCMNotifier{client: &fakeMessenger{}, tokens: tokenMap{}, logger: zap.NewNop()}
	assert.Error(t, n.Publish(context.Background(), sampleEvent(BookingAssigned)))
}
