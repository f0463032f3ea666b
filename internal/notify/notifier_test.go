package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/notify"
)

type sent struct {
	topic string
	body  []byte
}

type fakeBus struct {
	out []sent
	err error
}

func (b *fakeBus) Publish(_ context.Context, topic string, body []byte) error {
	if b.err != nil {
		return b.err
	}
	b.out = append(b.out, sent{topic: topic, body: body})
	return nil
}

func TestNotifierPublishesEnvelope(t *testing.T) {
	bus := &fakeBus{}
	n := notify.New(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if n.Name() != notify.Name || n.Types() != nil {
		t.Fatalf("Name/Types = %q/%v, want notifier/all", n.Name(), n.Types())
	}

	evt, err := event.New(event.MovieCreated, event.MovieData{Title: "Heat", Duration: 170})
	if err != nil {
		t.Fatalf("event.New error = %v", err)
	}
	evt.ID = uuid.New()
	evt.AggregateType = event.AggregateMovie
	evt.AggregateID = "m1"
	evt.Seq = 1
	evt.Position = 7

	if err := n.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if len(bus.out) != 1 || bus.out[0].topic != string(event.MovieCreated) {
		t.Fatalf("published = %+v, want one movie.created message", bus.out)
	}

	var msg notify.Message
	if err := json.Unmarshal(bus.out[0].body, &msg); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if msg.ID != evt.ID || msg.AggregateID != "m1" || msg.Position != 7 {
		t.Fatalf("message = %+v, want envelope of the event", msg)
	}

	data, err := event.Decode[event.MovieData](event.Event{Payload: msg.Payload})
	if err != nil || data.Title != "Heat" {
		t.Fatalf("payload = %s (%v), want raw movie data", msg.Payload, err)
	}
}

func TestNotifierReturnsBusErrors(t *testing.T) {
	boom := errors.New("bus down")
	n := notify.New(&fakeBus{err: boom}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	evt, _ := event.New(event.CinemaDeleted, nil)
	if err := n.Handle(context.Background(), evt); !errors.Is(err, boom) {
		t.Fatalf("Handle error = %v, want bus error", err)
	}
}
