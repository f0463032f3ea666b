package aggregate

import (
	"strings"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
)

type Seat struct {
	Root
	CinemaID   string
	SeatRow    string
	SeatNumber int
}

func (s *Seat) Apply(evt event.Event) error {
	switch evt.Type {
	case event.SeatCreated, event.SeatUpdated:
		d, err := event.Decode[event.SeatData](evt)
		if err != nil {
			return err
		}
		s.CinemaID, s.SeatRow, s.SeatNumber = d.CinemaID, d.SeatRow, d.SeatNumber
		if evt.Type == event.SeatCreated {
			s.Status = Active
		}
	case event.SeatDeleted:
		s.Status = Deleted
	default:
		return unknownEvent("seat", evt)
	}
	return nil
}

func validateSeat(f command.SeatFields) error {
	if strings.TrimSpace(f.CinemaID) == "" {
		return invalid("cinemaId", "cinema id is required")
	}
	if strings.TrimSpace(f.SeatRow) == "" {
		return invalid("seatRow", "seat row is required")
	}
	if f.SeatNumber <= 0 {
		return invalid("seatNumber", "seat number must be positive")
	}
	return nil
}

func seatData(f command.SeatFields) event.SeatData {
	return event.SeatData{CinemaID: f.CinemaID, SeatRow: f.SeatRow, SeatNumber: f.SeatNumber}
}

func createSeat(_ *Seat, f command.SeatFields) ([]event.Event, error) {
	if err := validateSeat(f); err != nil {
		return nil, err
	}
	return emit(event.SeatCreated, seatData(f))
}

func updateSeat(_ *Seat, f command.SeatFields) ([]event.Event, error) {
	if err := validateSeat(f); err != nil {
		return nil, err
	}
	return emit(event.SeatUpdated, seatData(f))
}

func deleteSeat(_ *Seat, _ struct{}) ([]event.Event, error) {
	return emit(event.SeatDeleted, nil)
}
