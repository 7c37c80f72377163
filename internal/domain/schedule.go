package domain

import "time"

// User is the read-only passenger view the core needs
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Schedule is a read-only snapshot of a trip. Only AvailableSeats is
// maintained by the booking ledger; everything else belongs to master data.
type Schedule struct {
	ID             string    `json:"id"`
	RouteID        string    `json:"route_id"`
	BusID          string    `json:"bus_id,omitempty"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	TravelDate     time.Time `json:"travel_date"`
	DepartureTime  time.Time `json:"departure_time"`
	ArrivalTime    time.Time `json:"arrival_time"`
	Price          int64     `json:"price"`
	AvailableSeats int       `json:"available_seats"`

	BusNumber   string `json:"bus_number,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`
	BusType     string `json:"bus_type,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
}

// ExpectedAmount returns the price of seats seats, or -1 when the schedule
// has no price to check against
func (s *Schedule) ExpectedAmount(seats int) int64 {
	if s.Price <= 0 {
		return -1
	}
	return s.Price * int64(seats)
}
