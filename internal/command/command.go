// Package command defines the requests that mutate aggregates.
package command

import (
	"errors"
	"time"
)

// ErrConcurrencyConflict is returned when another command appended to the
// same aggregate between load and append. Callers reload and retry.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// Type is the command type tag. Each tag targets exactly one aggregate type.
type Type string

const (
	CreateCinema Type = "cinema.create"
	UpdateCinema Type = "cinema.update"
	DeleteCinema Type = "cinema.delete"

	CreateMovie Type = "movie.create"
	UpdateMovie Type = "movie.update"
	DeleteMovie Type = "movie.delete"

	CreateSeat Type = "seat.create"
	UpdateSeat Type = "seat.update"
	DeleteSeat Type = "seat.delete"

	CreateShowTime Type = "showtime.create"
	UpdateShowTime Type = "showtime.update"
	DeleteShowTime Type = "showtime.delete"

	CreateEmployee Type = "employee.create"
	UpdateEmployee Type = "employee.update"
	DeleteEmployee Type = "employee.delete"

	CreateWorkShift Type = "workshift.create"
	UpdateWorkShift Type = "workshift.update"
	DeleteWorkShift Type = "workshift.delete"
)

// Command is a one-shot request against the aggregate identified by TargetID.
// Payload holds one of the *Fields types below; delete commands leave it nil.
type Command struct {
	TargetID string
	Type     Type
	Payload  any
}

type CinemaFields struct {
	Name    string
	Address string
}

type MovieFields struct {
	Title       string
	Description string
	Duration    int
	PosterURL   string
}

type SeatFields struct {
	CinemaID   string
	SeatRow    string
	SeatNumber int
}

type ShowTimeFields struct {
	MovieID    string
	CinemaID   string
	StartTime  time.Time
	PriceCents int64
}

type EmployeeFields struct {
	UserID   string
	CinemaID string
	Position string
	Status   string
}

type WorkShiftFields struct {
	EmployeeID string
	ShiftName  string
	StartTime  time.Time
	EndTime    time.Time
	IsAttended bool
}
