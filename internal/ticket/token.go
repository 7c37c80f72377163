// Package ticket derives the printable confirmation payload of a booking.
// Everything here is pure: the same snapshot and salt always give the same
// token.
package ticket

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/moshiverse/busmate/internal/domain"
)

const (
	DateLayout = "Jan 02, 2006"
	TimeLayout = "03:04 PM"

	codeModulus = 1_000_000
)

// Snapshot is everything the token is derived from
type Snapshot struct {
	Booking  *domain.Booking
	User     *domain.User
	Schedule *domain.Schedule
}

// Payload is the JSON document encoded into the ticket QR code
type Payload struct {
	BookingID        string `json:"bookingId"`
	Status           string `json:"status"`
	Passenger        string `json:"passenger"`
	Email            string `json:"email"`
	Origin           string `json:"origin"`
	Destination      string `json:"destination"`
	Route            string `json:"route"`
	TravelDate       string `json:"travelDate"`
	DepartureTime    string `json:"departureTime"`
	ArrivalTime      string `json:"arrivalTime,omitempty"`
	BusNumber        string `json:"busNumber,omitempty"`
	PlateNumber      string `json:"plateNumber,omitempty"`
	BusType          string `json:"busType,omitempty"`
	Seats            string `json:"seats"`
	SeatCount        int    `json:"seatCount"`
	Amount           string `json:"amount"`
	VerificationCode string `json:"verificationCode"`
}

// Token is a generated ticket
type Token struct {
	Payload Payload
	Text    string
}

// String returns the stored representation of the token
func (t Token) String() string {
	return t.Text
}

// Generate builds the ticket token for a confirmed booking. salt is the
// booking's confirmation time.
func Generate(s Snapshot, salt time.Time) (Token, error) {
	if s.Booking == nil || s.Schedule == nil {
		return Token{}, fmt.Errorf("ticket snapshot requires booking and schedule")
	}
	b, sch := s.Booking, s.Schedule

	p := Payload{
		BookingID:        DisplayID(b.ID),
		Status:           b.Status.String(),
		Origin:           sch.Origin,
		Destination:      sch.Destination,
		Route:            sch.Origin + " - " + sch.Destination,
		TravelDate:       sch.TravelDate.Format(DateLayout),
		DepartureTime:    sch.DepartureTime.Format(TimeLayout),
		BusNumber:        sch.BusNumber,
		PlateNumber:      sch.PlateNumber,
		BusType:          sch.BusType,
		Seats:            strings.Join(b.SeatNumbers, ", "),
		SeatCount:        len(b.SeatNumbers),
		Amount:           FormatAmount(b.Currency, b.Amount),
		VerificationCode: VerificationCode(b.ID, salt),
	}
	if !sch.ArrivalTime.IsZero() {
		p.ArrivalTime = sch.ArrivalTime.Format(TimeLayout)
	}
	if s.User != nil {
		p.Passenger = s.User.Name
		p.Email = s.User.Email
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return Token{}, fmt.Errorf("failed to encode ticket payload: %w", err)
	}
	return Token{Payload: p, Text: string(raw)}, nil
}

// VerificationCode returns the six digit code printed on the ticket for
// manual checks at boarding
func VerificationCode(bookingID string, salt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("BM:%s:%d", bookingID, salt.UnixMilli())))
	n := binary.BigEndian.Uint32(sum[:4]) % codeModulus
	return fmt.Sprintf("%06d", n)
}

// DisplayID shortens a booking uuid to the BM-XXXXXXXX form shown to passengers
func DisplayID(bookingID string) string {
	hex := strings.ReplaceAll(bookingID, "-", "")
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "BM-" + strings.ToUpper(hex)
}

// FormatAmount renders minor units as "PHP 350.00"
func FormatAmount(currency string, minor int64) string {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, minor/100, minor%100)
}
