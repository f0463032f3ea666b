package aggregate

import (
	"strings"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/event"
)

type Employee struct {
	Root
	UserID   string
	CinemaID string
	Position string
	// EmployeeStatus is the staffing status, not the aggregate lifecycle.
	EmployeeStatus string
}

func (e *Employee) Apply(evt event.Event) error {
	switch evt.Type {
	case event.EmployeeCreated, event.EmployeeUpdated:
		d, err := event.Decode[event.EmployeeData](evt)
		if err != nil {
			return err
		}
		e.UserID, e.CinemaID, e.Position, e.EmployeeStatus = d.UserID, d.CinemaID, d.Position, d.Status
		if evt.Type == event.EmployeeCreated {
			e.Status = Active
		}
	case event.EmployeeDeleted:
		e.Status = Deleted
	default:
		return unknownEvent("employee", evt)
	}
	return nil
}

func validateEmployee(f command.EmployeeFields) error {
	if strings.TrimSpace(f.UserID) == "" {
		return invalid("userId", "user id is required")
	}
	if strings.TrimSpace(f.CinemaID) == "" {
		return invalid("cinemaId", "cinema id is required")
	}
	return nil
}

func employeeData(f command.EmployeeFields) event.EmployeeData {
	return event.EmployeeData{
		UserID:   f.UserID,
		CinemaID: f.CinemaID,
		Position: f.Position,
		Status:   f.Status,
	}
}

func createEmployee(_ *Employee, f command.EmployeeFields) ([]event.Event, error) {
	if err := validateEmployee(f); err != nil {
		return nil, err
	}
	if f.Status == "" {
		f.Status = domain.EmployeeActive
	}
	return emit(event.EmployeeCreated, employeeData(f))
}

func updateEmployee(e *Employee, f command.EmployeeFields) ([]event.Event, error) {
	if err := validateEmployee(f); err != nil {
		return nil, err
	}
	if f.Status == "" {
		f.Status = e.EmployeeStatus
	}
	return emit(event.EmployeeUpdated, employeeData(f))
}

func deleteEmployee(_ *Employee, _ struct{}) ([]event.Event, error) {
	return emit(event.EmployeeDeleted, nil)
}
