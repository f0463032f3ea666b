package httpgin

import (
	"time"

	"github.com/kirinyoku/cinema-es/internal/command"
)

type CinemaRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=100"`
	Address string `json:"address" binding:"required,min=5,max=255"`
}

func (r CinemaRequest) fields() any {
	return command.CinemaFields{Name: r.Name, Address: r.Address}
}

type MovieRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description" binding:"max=2000"`
	Duration    int    `json:"duration" binding:"required,min=1,max=500"`
	PosterURL   string `json:"poster_url" binding:"omitempty,url"`
}

func (r MovieRequest) fields() any {
	return r.movieFields()
}

func (r MovieRequest) movieFields() command.MovieFields {
	return command.MovieFields{
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		PosterURL:   r.PosterURL,
	}
}

// MovieForm is the multipart variant of MovieRequest; the poster travels in
// the "file" part.
type MovieForm struct {
	Title       string `form:"title" binding:"required,max=255"`
	Description string `form:"description" binding:"max=2000"`
	Duration    int    `form:"duration" binding:"required,min=1,max=500"`
}

type SeatRequest struct {
	CinemaID   string `json:"cinema_id" binding:"required"`
	SeatRow    string `json:"seat_row" binding:"required,len=1,uppercase"`
	SeatNumber int    `json:"seat_number" binding:"required,min=1,max=100"`
}

func (r SeatRequest) fields() any {
	return command.SeatFields{CinemaID: r.CinemaID, SeatRow: r.SeatRow, SeatNumber: r.SeatNumber}
}

type ShowTimeRequest struct {
	MovieID    string    `json:"movie_id" binding:"required"`
	CinemaID   string    `json:"cinema_id" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	PriceCents int64     `json:"price_cents" binding:"required,gt=0"`
}

func (r ShowTimeRequest) fields() any {
	return command.ShowTimeFields{
		MovieID:    r.MovieID,
		CinemaID:   r.CinemaID,
		StartTime:  r.StartTime,
		PriceCents: r.PriceCents,
	}
}

type EmployeeRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	CinemaID string `json:"cinema_id" binding:"required"`
	Position string `json:"position" binding:"required,max=100"`
	Status   string `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
}

func (r EmployeeRequest) fields() any {
	return command.EmployeeFields{
		UserID:   r.UserID,
		CinemaID: r.CinemaID,
		Position: r.Position,
		Status:   r.Status,
	}
}

type WorkShiftRequest struct {
	EmployeeID string    `json:"employee_id" binding:"required"`
	ShiftName  string    `json:"shift_name" binding:"required,max=50"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time" binding:"required"`
	IsAttended bool      `json:"is_attended"`
}

func (r WorkShiftRequest) fields() any {
	return command.WorkShiftFields{
		EmployeeID: r.EmployeeID,
		ShiftName:  r.ShiftName,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		IsAttended: r.IsAttended,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CommandResponse acknowledges an accepted command. The read side may not
// reflect it yet.
type CommandResponse struct {
	ID      string `json:"id"`
	Version uint64 `json:"version"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type RebuildResponse struct {
	Projections []string `json:"projections"`
}

type RedriveResponse struct {
	Subscriber string `json:"subscriber"`
	Delivered  int    `json:"delivered"`
}
