package domain

import (
	"time"
)

const (
	EmployeeActive   = "ACTIVE"
	EmployeeInactive = "INACTIVE"
)

// Read-model rows. Version is the Seq of the last event applied to the row.

type Cinema struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Movie struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	PosterURL   string    `json:"poster_url,omitempty"`
	Version     uint64    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

type Seat struct {
	ID         string `json:"id"`
	CinemaID   string `json:"cinema_id"`
	CinemaName string `json:"cinema_name"`
	SeatRow    string `json:"seat_row"`
	SeatNumber int    `json:"seat_number"`
	Version    uint64 `json:"version"`
}

type ShowTime struct {
	ID         string    `json:"id"`
	MovieID    string    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	CinemaID   string    `json:"cinema_id"`
	CinemaName string    `json:"cinema_name"`
	StartTime  time.Time `json:"start_time"`
	PriceCents int64     `json:"price_cents"`
	Version    uint64    `json:"version"`
}

type Employee struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	CinemaID string    `json:"cinema_id"`
	Position string    `json:"position"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
	Version  uint64    `json:"version"`
}

type WorkShift struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	ShiftName  string    `json:"shift_name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	IsAttended bool      `json:"is_attended"`
	Version    uint64    `json:"version"`
}
