package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLayout_Coach(t *testing.T) {
	tests := []struct {
		capacity    int
		regularRows int
		backRow     string
	}{
		{capacity: 41, regularRows: 9, backRow: "J"},
		{capacity: 53, regularRows: 12, backRow: "M"},
	}

	for _, tt := range tests {
		seats, err := GenerateLayout(LayoutSpec{Capacity: tt.capacity})
		require.NoError(t, err)
		require.Len(t, seats, tt.capacity)

		unique := make(map[string]struct{})
		for _, s := range seats {
			unique[s.SeatNumber] = struct{}{}
		}
		assert.Len(t, unique, tt.capacity, "seat numbers must be unique")

		perRow := make(map[int]int)
		for _, s := range seats {
			perRow[s.RowIndex]++
		}
		for r := 0; r < tt.regularRows; r++ {
			assert.Equal(t, 4, perRow[r], "row %d", r)
		}
		assert.Equal(t, 5, perRow[tt.regularRows])

		last := seats[len(seats)-1]
		assert.Equal(t, tt.backRow+"5", last.SeatNumber)
		assert.Equal(t, 4, last.ColIndex)
	}
}

func TestGenerateLayout_CoachAisle(t *testing.T) {
	seats, err := GenerateLayout(LayoutSpec{Capacity: 41})
	require.NoError(t, err)

	first := seats[:4]
	assert.Equal(t, []SeatPosition{
		{SeatNumber: "A1", RowIndex: 0, ColIndex: 0},
		{SeatNumber: "A2", RowIndex: 0, ColIndex: 1},
		{SeatNumber: "A3", RowIndex: 0, ColIndex: 3},
		{SeatNumber: "A4", RowIndex: 0, ColIndex: 4},
	}, first)

	for _, s := range seats[:36] {
		assert.NotEqual(t, 2, s.ColIndex, "aisle column must stay empty in regular rows")
	}
}

func TestGenerateLayout_Grid(t *testing.T) {
	seats, err := GenerateLayout(LayoutSpec{Rows: 3, Cols: 4})
	require.NoError(t, err)
	require.Len(t, seats, 12)
	assert.Equal(t, "A1", seats[0].SeatNumber)
	assert.Equal(t, "C4", seats[11].SeatNumber)
	assert.Equal(t, 2, seats[11].RowIndex)
	assert.Equal(t, 3, seats[11].ColIndex)

	seats, err = GenerateLayout(LayoutSpec{Capacity: 20, Rows: 5, Cols: 4})
	require.NoError(t, err)
	assert.Len(t, seats, 20)
}

func TestGenerateLayout_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec LayoutSpec
	}{
		{name: "empty grid", spec: LayoutSpec{}},
		{name: "negative cols", spec: LayoutSpec{Rows: 2, Cols: -1}},
		{name: "capacity mismatch", spec: LayoutSpec{Capacity: 30, Rows: 5, Cols: 4}},
		{name: "too many rows", spec: LayoutSpec{Rows: 27, Cols: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateLayout(tt.spec)
			assert.True(t, errors.Is(err, ErrInvalidLayout))
		})
	}
}

func TestNormalizeSeatNumbers(t *testing.T) {
	assert.Equal(t, []string{"A1", "B2"}, NormalizeSeatNumbers([]string{" a1", "B2", "A1", ""}))
	assert.Empty(t, NormalizeSeatNumbers(nil))
}
