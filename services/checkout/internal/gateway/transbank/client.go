package transbank

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

	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("transbank: gateway unavailable")

type Config struct {
	BaseURL      string
	CommerceCode string
	APIKeySecret string
	Timeout      time.Duration
}

type Client struct {
	baseURL      string
	commerceCode string
	apiKey       string
	httpClient   *http.Client
	cb           *gobreaker.CircuitBreaker
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		commerceCode: cfg.CommerceCode,
		apiKey:       cfg.APIKeySecret,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb:     utils.NewBreaker("transbank", logger, breakerSuccess),
		logger: logger,
		tracer: otel.Tracer("transbank_client"),
	}
}

// Create registers a new Webpay Plus transaction and returns the token and redirect URL.
func (c *Client) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResponse, error) {
	ctx, span := c.tracer.Start(ctx, "TransbankClient.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("buy_order", buyOrder),
		attribute.Int64("amount", amount),
	)

	body := createRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	}

	var resp CreateResponse
	if err := c.do(ctx, http.MethodPost, transactionsPath, body, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &resp, nil
}

// Commit confirms the transaction identified by token.
func (c *Client) Commit(ctx context.Context, token string) (*CommitResponse, error) {
	ctx, span := c.tracer.Start(ctx, "TransbankClient.Commit")
	defer span.End()

	var resp CommitResponse
	if err := c.do(ctx, http.MethodPut, transactionsPath+"/"+url.PathEscape(token), nil, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("status", resp.Status),
		attribute.Int("response_code", resp.ResponseCode),
	)
	return &resp, nil
}

func (c *Client) Status(ctx context.Context, token string) (*CommitResponse, error) {
	ctx, span := c.tracer.Start(ctx, "TransbankClient.Status")
	defer span.End()

	var resp CommitResponse
	if err := c.do(ctx, http.MethodGet, transactionsPath+"/"+url.PathEscape(token), nil, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	_, err := utils.ExecuteWithBreaker(c.cb, func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		mylogger.Warn(ctx, c.logger, "Transbank circuit breaker rejected call", zap.String("path", path))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}

// breakerSuccess keeps client errors (bad or replayed tokens) from tripping the breaker.
// Only transport failures, 429 and 5xx answers count against the gateway.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < http.StatusInternalServerError &&
			apiErr.StatusCode != http.StatusTooManyRequests
	}

	return false
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("transbank: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("transbank: build request: %w", err)
	}

	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transbank: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("transbank: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

		var errBody apiErrorBody
		if json.Unmarshal(raw, &errBody) == nil && errBody.ErrorMessage != "" {
			apiErr.Message = errBody.ErrorMessage
		}

		mylogger.Warn(
			ctx,
			c.logger,
			"Transbank returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)

		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("transbank: decode response: %w", err)
	}

	return nil
}
