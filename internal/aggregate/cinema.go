package aggregate

import (
	"strings"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
)

type Cinema struct {
	Root
	Name    string
	Address string
}

func (c *Cinema) Apply(evt event.Event) error {
	switch evt.Type {
	case event.CinemaCreated, event.CinemaUpdated:
		d, err := event.Decode[event.CinemaData](evt)
		if err != nil {
			return err
		}
		c.Name, c.Address = d.Name, d.Address
		if evt.Type == event.CinemaCreated {
			c.Status = Active
		}
	case event.CinemaDeleted:
		c.Status = Deleted
	default:
		return unknownEvent("cinema", evt)
	}
	return nil
}

func validateCinema(f command.CinemaFields) error {
	if strings.TrimSpace(f.Name) == "" {
		return invalid("name", "cinema name is required")
	}
	if strings.TrimSpace(f.Address) == "" {
		return invalid("address", "cinema address is required")
	}
	return nil
}

func createCinema(_ *Cinema, f command.CinemaFields) ([]event.Event, error) {
	if err := validateCinema(f); err != nil {
		return nil, err
	}
	return emit(event.CinemaCreated, event.CinemaData{Name: f.Name, Address: f.Address})
}

func updateCinema(_ *Cinema, f command.CinemaFields) ([]event.Event, error) {
	if err := validateCinema(f); err != nil {
		return nil, err
	}
	return emit(event.CinemaUpdated, event.CinemaData{Name: f.Name, Address: f.Address})
}

func deleteCinema(_ *Cinema, _ struct{}) ([]event.Event, error) {
	return emit(event.CinemaDeleted, nil)
}
