package aggregate

import (
	"strings"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
)

type Movie struct {
	Root
	Title       string
	Description string
	Duration    int
	PosterURL   string
}

func (m *Movie) Apply(evt event.Event) error {
	switch evt.Type {
	case event.MovieCreated, event.MovieUpdated:
		d, err := event.Decode[event.MovieData](evt)
		if err != nil {
			return err
		}
		m.Title, m.Description, m.Duration, m.PosterURL = d.Title, d.Description, d.Duration, d.PosterURL
		if evt.Type == event.MovieCreated {
			m.Status = Active
		}
	case event.MovieDeleted:
		m.Status = Deleted
	default:
		return unknownEvent("movie", evt)
	}
	return nil
}

func validateMovie(f command.MovieFields) error {
	if strings.TrimSpace(f.Title) == "" {
		return invalid("title", "movie title is required")
	}
	if f.Duration <= 0 {
		return invalid("duration", "duration must be positive")
	}
	return nil
}

func movieData(f command.MovieFields) event.MovieData {
	return event.MovieData{
		Title:       f.Title,
		Description: f.Description,
		Duration:    f.Duration,
		PosterURL:   f.PosterURL,
	}
}

func createMovie(_ *Movie, f command.MovieFields) ([]event.Event, error) {
	if err := validateMovie(f); err != nil {
		return nil, err
	}
	return emit(event.MovieCreated, movieData(f))
}

// updateMovie keeps the current poster when the command does not carry one.
func updateMovie(m *Movie, f command.MovieFields) ([]event.Event, error) {
	if err := validateMovie(f); err != nil {
		return nil, err
	}
	if f.PosterURL == "" {
		f.PosterURL = m.PosterURL
	}
	return emit(event.MovieUpdated, movieData(f))
}

func deleteMovie(_ *Movie, _ struct{}) ([]event.Event, error) {
	return emit(event.MovieDeleted, nil)
}
