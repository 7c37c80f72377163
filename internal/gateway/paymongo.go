package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultPayMongoBaseURL  = "https://api.paymongo.com/v1"
	PayMongoSignatureHeader = "Paymongo-Signature"

	defaultPayMongoTimeout = 30 * time.Second
	statementDescriptor    = "BusMate"
)

// DefaultPaymentMethods are the methods offered on PayMongo intents
var DefaultPaymentMethods = []string{"card", "gcash", "grab_pay", "paymaya"}

// PayMongoConfig holds configuration for the PayMongo gateway
type PayMongoConfig struct {
	SecretKey      string
	BaseURL        string
	Timeout        time.Duration
	PaymentMethods []string
	HTTPClient     *http.Client
}

// PayMongoGateway implements PaymentGateway against the PayMongo REST API
type PayMongoGateway struct {
	config  *PayMongoConfig
	client  *http.Client
	baseURL string
}

// NewPayMongoGateway creates a new PayMongo gateway
func NewPayMongoGateway(config *PayMongoConfig) (*PayMongoGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("paymongo config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("paymongo secret key is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultPayMongoBaseURL
	}
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultPayMongoTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if len(config.PaymentMethods) == 0 {
		config.PaymentMethods = DefaultPaymentMethods
	}

	return &PayMongoGateway{config: config, client: client, baseURL: baseURL}, nil
}

// Name returns the gateway name
func (g *PayMongoGateway) Name() string {
	return NamePayMongo
}

type payMongoEnvelope struct {
	Data payMongoIntent `json:"data"`
}

type payMongoIntent struct {
	ID         string                   `json:"id,omitempty"`
	Attributes payMongoIntentAttributes `json:"attributes"`
}

type payMongoIntentAttributes struct {
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	Description          string            `json:"description,omitempty"`
	StatementDescriptor  string            `json:"statement_descriptor,omitempty"`
	PaymentMethodAllowed []string          `json:"payment_method_allowed,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	ClientKey            string            `json:"client_key,omitempty"`
	Status               string            `json:"status,omitempty"`
	Payments             []payMongoPayment `json:"payments,omitempty"`
}

type payMongoPayment struct {
	ID         string `json:"id"`
	Attributes struct {
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	} `json:"attributes"`
}

// PayMongoError represents an error response from PayMongo
type PayMongoError struct {
	StatusCode int
	Code       string `json:"code"`
	Detail     string `json:"detail"`
}

func (e *PayMongoError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("paymongo error: http %d", e.StatusCode)
	}
	return fmt.Sprintf("paymongo error: http %d: %s: %s", e.StatusCode, e.Code, e.Detail)
}

// CreateIntent creates a PayMongo payment intent
func (g *PayMongoGateway) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	if req == nil {
		return nil, fmt.Errorf("intent request is required")
	}

	body := payMongoEnvelope{Data: payMongoIntent{Attributes: payMongoIntentAttributes{
		Amount:               req.Amount,
		Currency:             req.Currency,
		Description:          req.Description,
		StatementDescriptor:  statementDescriptor,
		PaymentMethodAllowed: g.config.PaymentMethods,
		Metadata:             req.Metadata,
	}}}

	var out payMongoEnvelope
	if err := g.do(ctx, http.MethodPost, "/payment_intents", body, &out); err != nil {
		return nil, err
	}

	attrs := out.Data.Attributes
	return &Intent{
		ID:             out.Data.ID,
		ClientKey:      attrs.ClientKey,
		Status:         attrs.Status,
		Amount:         attrs.Amount,
		Currency:       attrs.Currency,
		Description:    attrs.Description,
		PaymentMethods: attrs.PaymentMethodAllowed,
	}, nil
}

// GetIntentStatus retrieves a PayMongo payment intent
func (g *PayMongoGateway) GetIntentStatus(ctx context.Context, intentID string) (*IntentStatus, error) {
	if intentID == "" {
		return nil, fmt.Errorf("payment intent id is required")
	}

	var out payMongoEnvelope
	if err := g.do(ctx, http.MethodGet, "/payment_intents/"+intentID, nil, &out); err != nil {
		return nil, err
	}

	attrs := out.Data.Attributes
	status := &IntentStatus{
		IntentID:  out.Data.ID,
		Status:    attrs.Status,
		ClientKey: attrs.ClientKey,
		Metadata:  attrs.Metadata,
	}
	for _, p := range attrs.Payments {
		if p.Attributes.Status == "paid" || status.PaymentID == "" {
			status.PaymentID = p.ID
			status.PaidAmount = p.Attributes.Amount
		}
	}
	if status.PaidAmount == 0 && status.Succeeded() {
		status.PaidAmount = attrs.Amount
	}
	return status, nil
}

func (g *PayMongoGateway) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal paymongo request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create paymongo request: %w", err)
	}
	req.SetBasicAuth(g.config.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send paymongo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paymongo response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parsePayMongoError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode paymongo response: %w", err)
	}
	return nil
}

func parsePayMongoError(status int, raw []byte) error {
	var body struct {
		Errors []PayMongoError `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 {
		e := body.Errors[0]
		e.StatusCode = status
		return &e
	}
	return &PayMongoError{StatusCode: status}
}

// VerifyPayMongoSignature checks a Paymongo-Signature header of the form
// "t=<unix>,te=<hex>,li=<hex>" against HMAC-SHA256(secret, "<t>.<payload>").
// Either the test or the live signature may match.
func VerifyPayMongoSignature(payload []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "te", "li":
			if v != "" {
				sigs = append(sigs, v)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err == nil && hmac.Equal(got, expected) {
			return true
		}
	}
	return false
}

// SignPayMongoPayload produces a header VerifyPayMongoSignature accepts
func SignPayMongoPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,te=%s,li=", ts, hex.EncodeToString(mac.Sum(nil)))
}
