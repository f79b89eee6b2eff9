package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []*messaging.Message
	fail map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg *messaging.Message) (string, error) {
	if f.fail[msg.Topic] {
		return "", errors.New("unavailable")
	}
	f.sent = append(f.sent, msg)
	return "projects/p/messages/1", nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func sampleEvent() Event {
	return Event{
		Type:        EventOrderStatus,
		OrderID:     "o1",
		OrderNumber: "CMD-ABCDEF12",
		Status:      "ready",
		Recipients: []Recipient{
			{Role: "client", ID: "c1"},
			{Role: "courier", ID: "k1"},
		},
		Data: map[string]string{"distance_km": "1.20"},
		At:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestFCM_TopicPerRecipient(t *testing.T) {
	sender := &fakeSender{}
	err := NewFCM(sender, nil).Notify(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	assert.Equal(t, "client_c1", sender.sent[0].Topic)
	assert.Equal(t, "courier_k1", sender.sent[1].Topic)
	assert.Equal(t, "o1", sender.sent[0].Data["order_id"])
	assert.Equal(t, "1.20", sender.sent[0].Data["distance_km"])
	assert.Equal(t, "high", sender.sent[0].Android.Priority)
}

func TestFCM_PartialFailureStillSendsOthers(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"client_c1": true}}
	err := NewFCM(sender, nil).Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_c1")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "courier_k1", sender.sent[0].Topic)
}

func TestKafka_PublishesJSONKeyedByOrder(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafka(w).Notify(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o1", string(w.msgs[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, EventOrderStatus, got.Type)
	assert.Equal(t, "CMD-ABCDEF12", got.OrderNumber)
	assert.Len(t, got.Recipients, 2)
}

func TestKafka_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := NewKafka(w).Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("b failed")}
	c := &recordingNotifier{}

	err := Multi{a, nil, b, c}.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Len(t, c.events, 1)

	assert.NoError(t, Multi{a, c}.Notify(context.Background(), sampleEvent()))
}
