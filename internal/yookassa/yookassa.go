// Package yookassa is a client for the subset of the YooKassa v3 payments
// API that subscription checkout needs: creating a redirect payment and
// reading a payment back.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Payment statuses reported by the gateway.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 512

// ErrNotFound is returned when the gateway does not know a payment.
var ErrNotFound = errors.New("yookassa: payment not found")

// Amount is a decimal money value.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation describes how the payer confirms the payment.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// PaymentRequest is the body of a create-payment call.
type PaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Confirmation Confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Payment is the gateway's view of a payment.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yookassa: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to one shop's account.
type Client struct {
	baseURL   string
	shopID    string
	secretKey string
	http      *http.Client
	tracer    trace.Tracer
}

// New creates a Client. A zero timeout leaves the http client unbounded,
// so callers should always pass one.
func New(baseURL, shopID, secretKey string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, shopID, secretKey, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a Client over an existing http.Client.
func NewWithHTTPClient(baseURL, shopID, secretKey string, hc *http.Client) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		shopID:    shopID,
		secretKey: secretKey,
		http:      hc,
		tracer:    otel.Tracer("github.com/zodiacbot/zodiacbot/internal/yookassa"),
	}
}

// CreatePayment creates a payment. The gateway deduplicates calls that
// share idempotenceKey.
func (c *Client) CreatePayment(ctx context.Context, idempotenceKey string, req PaymentRequest) (Payment, error) {
	ctx, span := c.tracer.Start(ctx, "yookassa.CreatePayment")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return Payment{}, fmt.Errorf("encoding payment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/payments", bytes.NewReader(body))
	if err != nil {
		return Payment{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", idempotenceKey)

	var p Payment
	if err := c.do(span, httpReq, &p); err != nil {
		return Payment{}, err
	}
	span.SetAttributes(attribute.String("payment.status", p.Status))
	return p, nil
}

// GetPayment reads a payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	ctx, span := c.tracer.Start(ctx, "yookassa.GetPayment")
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return Payment{}, err
	}
	var p Payment
	if err := c.do(span, httpReq, &p); err != nil {
		return Payment{}, err
	}
	span.SetAttributes(attribute.String("payment.status", p.Status))
	return p, nil
}

func (c *Client) do(span trace.Span, req *http.Request, out any) error {
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		// Keep the payment id out of the error text.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("yookassa %s: %w", req.Method, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading yookassa response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(data)), maxErrorBody)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding yookassa response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
