package domain

import (
	"fmt"
	"strings"
)

// Capacities with a fixed coach layout: 2 seats, aisle, 2 seats, and a
// 5-seat back row.
const (
	StandardCoachCapacity = 41
	PremiumCoachCapacity  = 53

	backRowSeats = 5
	aisleColumn  = 2
	maxRows      = 26
)

// LayoutSpec describes how to lay out the seats of a schedule. Capacity
// selects the coach layout when it is 41 or 53; otherwise Rows x Cols is used.
type LayoutSpec struct {
	Capacity int `json:"capacity"`
	Rows     int `json:"rows"`
	Cols     int `json:"cols"`
}

// SeatPosition is one seat of a generated layout
type SeatPosition struct {
	SeatNumber string
	RowIndex   int
	ColIndex   int
}

// IsCoachLayout reports whether capacity uses the fixed coach layout
func IsCoachLayout(capacity int) bool {
	return capacity == StandardCoachCapacity || capacity == PremiumCoachCapacity
}

// GenerateLayout returns the seat positions for spec
func GenerateLayout(spec LayoutSpec) ([]SeatPosition, error) {
	if IsCoachLayout(spec.Capacity) {
		return coachLayout(spec.Capacity), nil
	}
	return gridLayout(spec)
}

func coachLayout(capacity int) []SeatPosition {
	regularRows := (capacity - backRowSeats) / 4
	seats := make([]SeatPosition, 0, capacity)

	for r := 0; r < regularRows; r++ {
		label := rowLabel(r)
		seats = append(seats,
			SeatPosition{SeatNumber: label + "1", RowIndex: r, ColIndex: 0},
			SeatPosition{SeatNumber: label + "2", RowIndex: r, ColIndex: 1},
			SeatPosition{SeatNumber: label + "3", RowIndex: r, ColIndex: aisleColumn + 1},
			SeatPosition{SeatNumber: label + "4", RowIndex: r, ColIndex: aisleColumn + 2},
		)
	}

	label := rowLabel(regularRows)
	for c := 0; c < backRowSeats; c++ {
		seats = append(seats, SeatPosition{
			SeatNumber: fmt.Sprintf("%s%d", label, c+1),
			RowIndex:   regularRows,
			ColIndex:   c,
		})
	}
	return seats
}

func gridLayout(spec LayoutSpec) ([]SeatPosition, error) {
	if spec.Rows <= 0 || spec.Cols <= 0 || spec.Rows > maxRows {
		return nil, fmt.Errorf("%w: grid of %dx%d", ErrInvalidLayout, spec.Rows, spec.Cols)
	}
	if spec.Capacity > 0 && spec.Rows*spec.Cols != spec.Capacity {
		return nil, fmt.Errorf("%w: grid of %dx%d does not seat %d", ErrInvalidLayout, spec.Rows, spec.Cols, spec.Capacity)
	}

	seats := make([]SeatPosition, 0, spec.Rows*spec.Cols)
	for r := 0; r < spec.Rows; r++ {
		label := rowLabel(r)
		for c := 0; c < spec.Cols; c++ {
			seats = append(seats, SeatPosition{
				SeatNumber: fmt.Sprintf("%s%d", label, c+1),
				RowIndex:   r,
				ColIndex:   c,
			})
		}
	}
	return seats, nil
}

func rowLabel(row int) string {
	return string(rune('A' + row))
}

func trimSeat(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
