package aggregate

import (
	"strings"
	"time"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
)

type ShowTime struct {
	Root
	MovieID    string
	CinemaID   string
	StartTime  time.Time
	PriceCents int64
}

func (s *ShowTime) Apply(evt event.Event) error {
	switch evt.Type {
	case event.ShowTimeCreated, event.ShowTimeUpdated:
		d, err := event.Decode[event.ShowTimeData](evt)
		if err != nil {
			return err
		}
		s.MovieID, s.CinemaID, s.StartTime, s.PriceCents = d.MovieID, d.CinemaID, d.StartTime, d.PriceCents
		if evt.Type == event.ShowTimeCreated {
			s.Status = Active
		}
	case event.ShowTimeDeleted:
		s.Status = Deleted
	default:
		return unknownEvent("showtime", evt)
	}
	return nil
}

func validateShowTime(f command.ShowTimeFields) error {
	switch {
	case strings.TrimSpace(f.MovieID) == "":
		return invalid("movieId", "movie id is required")
	case strings.TrimSpace(f.CinemaID) == "":
		return invalid("cinemaId", "cinema id is required")
	case f.StartTime.IsZero():
		return invalid("startTime", "start time is required")
	case f.PriceCents <= 0:
		return invalid("price", "price must be positive")
	}
	return nil
}

func showTimeData(f command.ShowTimeFields) event.ShowTimeData {
	return event.ShowTimeData{
		MovieID:    f.MovieID,
		CinemaID:   f.CinemaID,
		StartTime:  f.StartTime.UTC(),
		PriceCents: f.PriceCents,
	}
}

func createShowTime(_ *ShowTime, f command.ShowTimeFields) ([]event.Event, error) {
	if err := validateShowTime(f); err != nil {
		return nil, err
	}
	return emit(event.ShowTimeCreated, showTimeData(f))
}

func updateShowTime(_ *ShowTime, f command.ShowTimeFields) ([]event.Event, error) {
	if err := validateShowTime(f); err != nil {
		return nil, err
	}
	return emit(event.ShowTimeUpdated, showTimeData(f))
}

func deleteShowTime(_ *ShowTime, _ struct{}) ([]event.Event, error) {
	return emit(event.ShowTimeDeleted, nil)
}
