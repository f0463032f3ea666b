package aggregate

import (
	"strings"
	"time"

	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
)

type WorkShift struct {
	Root
	EmployeeID string
	ShiftName  string
	StartTime  time.Time
	EndTime    time.Time
	IsAttended bool
}

func (w *WorkShift) Apply(evt event.Event) error {
	switch evt.Type {
	case event.WorkShiftCreated, event.WorkShiftUpdated:
		d, err := event.Decode[event.WorkShiftData](evt)
		if err != nil {
			return err
		}
		w.EmployeeID, w.ShiftName = d.EmployeeID, d.ShiftName
		w.StartTime, w.EndTime, w.IsAttended = d.StartTime, d.EndTime, d.IsAttended
		if evt.Type == event.WorkShiftCreated {
			w.Status = Active
		}
	case event.WorkShiftDeleted:
		w.Status = Deleted
	default:
		return unknownEvent("workshift", evt)
	}
	return nil
}

func validateWorkShift(f command.WorkShiftFields) error {
	switch {
	case strings.TrimSpace(f.EmployeeID) == "":
		return invalid("employeeId", "employee id is required")
	case f.StartTime.IsZero():
		return invalid("startTime", "start time is required")
	case f.EndTime.IsZero():
		return invalid("endTime", "end time is required")
	case !f.EndTime.After(f.StartTime):
		return invalid("endTime", "end time must be after start time")
	}
	return nil
}

func workShiftData(f command.WorkShiftFields) event.WorkShiftData {
	return event.WorkShiftData{
		EmployeeID: f.EmployeeID,
		ShiftName:  f.ShiftName,
		StartTime:  f.StartTime.UTC(),
		EndTime:    f.EndTime.UTC(),
		IsAttended: f.IsAttended,
	}
}

func createWorkShift(_ *WorkShift, f command.WorkShiftFields) ([]event.Event, error) {
	if err := validateWorkShift(f); err != nil {
		return nil, err
	}
	return emit(event.WorkShiftCreated, workShiftData(f))
}

func updateWorkShift(_ *WorkShift, f command.WorkShiftFields) ([]event.Event, error) {
	if err := validateWorkShift(f); err != nil {
		return nil, err
	}
	return emit(event.WorkShiftUpdated, workShiftData(f))
}

func deleteWorkShift(_ *WorkShift, _ struct{}) ([]event.Event, error) {
	return emit(event.WorkShiftDeleted, nil)
}
