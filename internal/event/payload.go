package event

import "time"

// Payload shapes published by the aggregates. Created and Updated events of
// one entity share a shape; Deleted events carry an empty object.

type CinemaData struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type MovieData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	PosterURL   string `json:"poster_url,omitempty"`
}

type SeatData struct {
	CinemaID   string `json:"cinema_id"`
	SeatRow    string `json:"seat_row"`
	SeatNumber int    `json:"seat_number"`
}

type ShowTimeData struct {
	MovieID    string    `json:"movie_id"`
	CinemaID   string    `json:"cinema_id"`
	StartTime  time.Time `json:"start_time"`
	PriceCents int64     `json:"price_cents"`
}

type EmployeeData struct {
	UserID   string `json:"user_id"`
	CinemaID string `json:"cinema_id"`
	Position string `json:"position,omitempty"`
	Status   string `json:"status,omitempty"`
}

type WorkShiftData struct {
	EmployeeID string    `json:"employee_id"`
	ShiftName  string    `json:"shift_name,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	IsAttended bool      `json:"is_attended"`
}
