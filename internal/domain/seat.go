package domain

import "time"

// SeatStatus represents the lifecycle stage of a single seat
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusReserved  SeatStatus = "RESERVED"
	SeatStatusOccupied  SeatStatus = "OCCUPIED"
)

// IsValid checks if the status is a valid SeatStatus
func (s SeatStatus) IsValid() bool {
	switch s {
	case SeatStatusAvailable, SeatStatusReserved, SeatStatusOccupied:
		return true
	}
	return false
}

// String returns the string representation of SeatStatus
func (s SeatStatus) String() string {
	return string(s)
}

// Seat is one numbered seat of a schedule
type Seat struct {
	ID         string     `json:"id"`
	ScheduleID string     `json:"schedule_id"`
	SeatNumber string     `json:"seat_number"`
	RowIndex   int        `json:"row_index"`
	ColIndex   int        `json:"col_index"`
	Status     SeatStatus `json:"status"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SeatSummary counts the seats of a schedule per status
type SeatSummary struct {
	ScheduleID string `json:"schedule_id"`
	Total      int    `json:"total"`
	Available  int    `json:"available"`
	Reserved   int    `json:"reserved"`
	Occupied   int    `json:"occupied"`
}

// Add counts n seats of status in the summary
func (s *SeatSummary) Add(status SeatStatus, n int) {
	s.Total += n
	switch status {
	case SeatStatusAvailable:
		s.Available += n
	case SeatStatusReserved:
		s.Reserved += n
	case SeatStatusOccupied:
		s.Occupied += n
	}
}

// Taken returns the number of seats that are not available
func (s *SeatSummary) Taken() int {
	return s.Reserved + s.Occupied
}

// NormalizeSeatNumbers trims, de-duplicates and keeps the request order
func NormalizeSeatNumbers(numbers []string) []string {
	seen := make(map[string]struct{}, len(numbers))
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		n = trimSeat(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
