package dto

import "github.com/moshiverse/busmate/internal/domain"

// GenerateSeatsRequest selects the layout of a schedule's seat map. All
// fields are optional; an empty body uses the bus capacity.
type GenerateSeatsRequest struct {
	Capacity int `json:"capacity" binding:"omitempty,min=1"`
	Rows     int `json:"rows" binding:"omitempty,min=1,max=26"`
	Cols     int `json:"cols" binding:"omitempty,min=1"`
}

// LayoutSpec converts the request to the domain layout
func (r *GenerateSeatsRequest) LayoutSpec() domain.LayoutSpec {
	return domain.LayoutSpec{Capacity: r.Capacity, Rows: r.Rows, Cols: r.Cols}
}

// GenerateSeatsResponse reports how many seats were created
type GenerateSeatsResponse struct {
	ScheduleID string `json:"schedule_id"`
	SeatCount  int    `json:"seat_count"`
}

// SeatResponse represents a seat in API response
type SeatResponse struct {
	SeatNumber string `json:"seat_number"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	Status     string `json:"status"`
}

// SeatMapResponse is the seat map of a schedule with per-status counts
type SeatMapResponse struct {
	ScheduleID string              `json:"schedule_id"`
	Seats      []SeatResponse      `json:"seats"`
	Summary    *domain.SeatSummary `json:"summary"`
}

// NewSeatMapResponse builds the seat map from seats and summary
func NewSeatMapResponse(scheduleID string, seats []*domain.Seat, summary *domain.SeatSummary) *SeatMapResponse {
	out := make([]SeatResponse, len(seats))
	for i, s := range seats {
		out[i] = SeatResponse{
			SeatNumber: s.SeatNumber,
			Row:        s.RowIndex,
			Col:        s.ColIndex,
			Status:     s.Status.String(),
		}
	}
	return &SeatMapResponse{ScheduleID: scheduleID, Seats: out, Summary: summary}
}
