// Package event defines the immutable facts appended to aggregate streams.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed marks an event whose payload cannot be decoded. Retrying such
// an event never succeeds.
var ErrMalformed = errors.New("malformed event")

// AggregateType names the entity stream an event belongs to.
type AggregateType string

const (
	AggregateCinema    AggregateType = "cinema"
	AggregateMovie     AggregateType = "movie"
	AggregateSeat      AggregateType = "seat"
	AggregateShowTime  AggregateType = "showtime"
	AggregateEmployee  AggregateType = "employee"
	AggregateWorkShift AggregateType = "workshift"
)

// AggregateTypes lists every aggregate type in dependency order.
func AggregateTypes() []AggregateType {
	return []AggregateType{
		AggregateCinema,
		AggregateMovie,
		AggregateSeat,
		AggregateShowTime,
		AggregateEmployee,
		AggregateWorkShift,
	}
}

// Type is the event type tag.
type Type string

const (
	CinemaCreated Type = "cinema.created"
	CinemaUpdated Type = "cinema.updated"
	CinemaDeleted Type = "cinema.deleted"

	MovieCreated Type = "movie.created"
	MovieUpdated Type = "movie.updated"
	MovieDeleted Type = "movie.deleted"

	SeatCreated Type = "seat.created"
	SeatUpdated Type = "seat.updated"
	SeatDeleted Type = "seat.deleted"

	ShowTimeCreated Type = "showtime.created"
	ShowTimeUpdated Type = "showtime.updated"
	ShowTimeDeleted Type = "showtime.deleted"

	EmployeeCreated Type = "employee.created"
	EmployeeUpdated Type = "employee.updated"
	EmployeeDeleted Type = "employee.deleted"

	WorkShiftCreated Type = "workshift.created"
	WorkShiftUpdated Type = "workshift.updated"
	WorkShiftDeleted Type = "workshift.deleted"
)

// Event is the stored envelope. Seq is gapless per AggregateID starting at 1;
// Position orders the whole log and is assigned by the store.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Position      uint64          `json:"position"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	Seq           uint64          `json:"seq"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// New builds an unstamped event carrying payload encoded as JSON.
func New(t Type, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t, Payload: json.RawMessage(`{}`)}, nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}

	return Event{Type: t, Payload: b}, nil
}

// Decode unmarshals the payload of evt into T.
func Decode[T any](evt Event) (T, error) {
	var out T
	if len(evt.Payload) == 0 {
		return out, fmt.Errorf("%s %s/%d: empty payload: %w", evt.Type, evt.AggregateID, evt.Seq, ErrMalformed)
	}
	if err := json.Unmarshal(evt.Payload, &out); err != nil {
		return out, fmt.Errorf("%s %s/%d: %v: %w", evt.Type, evt.AggregateID, evt.Seq, err, ErrMalformed)
	}
	return out, nil
}
