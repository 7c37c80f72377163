package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/middleware"
	"github.com/stretchr/testify/require"
)

const (
	testUserID  = "9a3e6f1e-5c55-4a7b-8c1d-2f4b6a8c0e12"
	otherUserID = "1b2c3d4e-0000-4000-8000-000000000002"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter returns an engine that authenticates every request as
// userID with role; an empty userID leaves the request anonymous
func newTestRouter(userID, role string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextKeyUserID, userID)
			c.Set(middleware.ContextKeyRole, role)
		}
		c.Next()
	})
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewBuffer(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta json.RawMessage `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, w)
	require.NotNil(t, env.Error, w.Body.String())
	return env.Error.Code
}

func sampleBooking(userID string, status domain.BookingStatus) *domain.Booking {
	created := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	b := &domain.Booking{
		ID:          "3f2a9c1e-7b4d-4e8f-a1b2-c3d4e5f60718",
		UserID:      userID,
		ScheduleID:  "sched-1",
		Amount:      70000,
		Currency:    "PHP",
		Status:      status,
		SeatNumbers: []string{"A1", "A2"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if status == domain.BookingStatusConfirmed {
		at := created.Add(3 * time.Minute)
		b.ConfirmedAt = &at
		b.PaymentReference = "pay_1"
		b.TicketToken = `{"bookingId":"BM-3F2A9C1E"}`
	}
	return b
}

func doRequestWithHeader(r *gin.Engine, path, body, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, value)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
