package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"

	"github.com/salymed/salymed-backend/pkg/config"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
)

var (
	errAPIKeyRequired     = errors.New("paddle api key is required")
	errLoggerRequired     = errors.New("paddle logger is required")
	errInvalidPaddleEnv   = fmt.Errorf("paddle environment must be %q or %q", sandboxEnv, productionEnv)
	errPriceIDRequired    = errors.New("paddle price id is required")
	errMissingCheckoutID  = errors.New("paddle response missing transaction id")
	errMissingCheckoutURL = errors.New("paddle response missing checkout url")
)

var baseURLs = map[string]string{
	sandboxEnv:    paddlesdk.SandboxBaseURL,
	productionEnv: paddlesdk.ProductionBaseURL,
}

// TransactionRequest describes a single-item checkout transaction.
type TransactionRequest struct {
	PriceID       string
	CustomerEmail string
	CustomData    map[string]string
	SuccessURL    string
}

// Transaction is the subset of Paddle's transaction entity the checkout needs.
type Transaction struct {
	ID          string
	Status      string
	CheckoutURL string
}

// APIError is a non-2xx answer from the Paddle API.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Detail     string
	RequestID  string

	err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paddle api %d %s: %s", e.StatusCode, e.Code, e.Detail)
}

func (e *APIError) Unwrap() error { return e.err }

// GatewayRequestID lets error dumps log Paddle's request id for support
// tickets.
func (e *APIError) GatewayRequestID() string { return e.RequestID }

// billingAPI is the slice of the Paddle SDK the checkout flow calls.
type billingAPI interface {
	CreateTransaction(ctx context.Context, req *paddlesdk.CreateTransactionRequest) (*paddlesdk.Transaction, error)
	CreateCustomer(ctx context.Context, req *paddlesdk.CreateCustomerRequest) (*paddlesdk.Customer, error)
	ListCustomers(ctx context.Context, req *paddlesdk.ListCustomersRequest) (*paddlesdk.Collection[*paddlesdk.Customer], error)
}

// Client wraps the Paddle Billing SDK.
type Client struct {
	sdk         billingAPI
	environment string
	baseURL     string
	logger      *logger.Logger
}

// NewClient validates the credentials and picks the sandbox or production base URL.
func NewClient(ctx context.Context, cfg config.PaddleConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = baseURLs[env]
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	sdk, err := paddlesdk.New(apiKey,
		paddlesdk.WithBaseURL(baseURL),
		paddlesdk.WithClient(metaRecorder{next: &http.Client{Timeout: timeout}}),
	)
	if err != nil {
		return nil, fmt.Errorf("paddle sdk: %w", err)
	}

	c := &Client{
		sdk:         sdk,
		environment: env,
		baseURL:     baseURL,
		logger:      logg,
	}
	logg.Info(ctx, fmt.Sprintf("paddle client initialized (%s)", env))
	return c, nil
}

// Environment reports the normalized Paddle environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateTransaction opens a hosted checkout for one unit of the given price.
// The customer is looked up by email and created when Paddle has none.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if strings.TrimSpace(req.PriceID) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errPriceIDRequired, "create transaction")
	}

	meta := &callMeta{}
	ctx = context.WithValue(ctx, callMetaKey{}, meta)

	customerID, err := c.ensureCustomer(ctx, strings.TrimSpace(req.CustomerEmail))
	if err != nil {
		return nil, c.mapError(apiError(err, meta), "ensure customer")
	}

	customData := paddlesdk.CustomData{}
	for k, v := range req.CustomData {
		customData[k] = v
	}
	// Paddle has no per-transaction success url; the frontend reads it back.
	if req.SuccessURL != "" {
		customData["success_url"] = req.SuccessURL
	}

	body := &paddlesdk.CreateTransactionRequest{
		Items: []paddlesdk.CreateTransactionItems{
			*paddlesdk.NewCreateTransactionItemsTransactionItemFromCatalog(&paddlesdk.TransactionItemFromCatalog{
				PriceID:  req.PriceID,
				Quantity: 1,
			}),
		},
		CustomData: customData,
	}
	if customerID != "" {
		body.CustomerID = paddlesdk.PtrTo(customerID)
	}

	c.log(ctx, "request", "create_transaction", map[string]any{
		"price_id":    req.PriceID,
		"customer_id": customerID,
	})

	res, err := c.sdk.CreateTransaction(ctx, body)
	if err != nil {
		c.log(ctx, "error", "create_transaction", map[string]any{"error": err.Error()})
		return nil, c.mapError(apiError(err, meta), "create transaction")
	}
	if res == nil || res.ID == "" {
		return nil, c.mapError(errMissingCheckoutID, "create transaction")
	}
	if res.Checkout == nil || res.Checkout.URL == nil || strings.TrimSpace(*res.Checkout.URL) == "" {
		c.log(ctx, "error", "create_transaction", map[string]any{"error": errMissingCheckoutURL.Error(), "transaction_id": res.ID})
		return nil, c.mapError(errMissingCheckoutURL, "create transaction")
	}

	txn := &Transaction{ID: res.ID, Status: string(res.Status), CheckoutURL: *res.Checkout.URL}
	c.log(ctx, "response", "create_transaction", map[string]any{
		"transaction_id": txn.ID,
		"status":         txn.Status,
	})
	return txn, nil
}

// ensureCustomer returns the Paddle customer id for email, creating the
// customer when none exists. An empty email yields an anonymous checkout.
func (c *Client) ensureCustomer(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	if id, err := c.searchCustomer(ctx, email); err != nil || id != "" {
		return id, err
	}

	c.log(ctx, "request", "create_customer", map[string]any{"email": email})
	customer, err := c.sdk.CreateCustomer(ctx, &paddlesdk.CreateCustomerRequest{Email: email})
	if errors.Is(err, paddlesdk.ErrCustomerAlreadyExists) {
		return c.searchCustomer(ctx, email)
	}
	if err != nil {
		c.log(ctx, "error", "create_customer", map[string]any{"error": err.Error()})
		return "", err
	}
	c.log(ctx, "response", "create_customer", map[string]any{"customer_id": customer.ID})
	return customer.ID, nil
}

func (c *Client) searchCustomer(ctx context.Context, email string) (string, error) {
	customers, err := c.sdk.ListCustomers(ctx, &paddlesdk.ListCustomersRequest{Email: []string{email}})
	if err != nil {
		c.log(ctx, "error", "search_customer", map[string]any{"error": err.Error()})
		return "", err
	}
	res := customers.Next(ctx)
	if err := res.Err(); err != nil {
		return "", err
	}
	if !res.Ok() || res.Value() == nil {
		c.log(ctx, "response", "search_customer", map[string]any{"found": false})
		return "", nil
	}
	id := res.Value().ID
	c.log(ctx, "response", "search_customer", map[string]any{"customer_id": id})
	return id, nil
}

func (c *Client) mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("paddle %s failed", op))
}

// apiError folds the SDK error and the recorded response metadata into an
// APIError. Transport failures pass through unchanged.
func apiError(err error, meta *callMeta) error {
	var sdkErr *paddleerr.Error
	if errors.As(err, &sdkErr) {
		status := sdkErr.Status
		if status == 0 {
			status = meta.status
		}
		return &APIError{
			StatusCode: status,
			Type:       string(sdkErr.Type),
			Code:       sdkErr.Code,
			Detail:     sdkErr.Detail,
			RequestID:  meta.requestID,
			err:        sdkErr,
		}
	}
	if meta.status >= http.StatusBadRequest {
		return &APIError{StatusCode: meta.status, Detail: err.Error(), RequestID: meta.requestID, err: err}
	}
	return err
}

type callMetaKey struct{}

type callMeta struct {
	status    int
	requestID string
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// metaRecorder keeps the status and meta.request_id of failed responses,
// which the SDK error type drops.
type metaRecorder struct {
	next httpDoer
}

func (r metaRecorder) Do(req *http.Request) (*http.Response, error) {
	res, err := r.next.Do(req)
	if err != nil || res.StatusCode < http.StatusBadRequest {
		return res, err
	}
	meta, _ := req.Context().Value(callMetaKey{}).(*callMeta)
	if meta == nil {
		return res, nil
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	_ = res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read paddle error body: %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(raw))

	meta.status = res.StatusCode
	var envelope struct {
		Meta struct {
			RequestID string `json:"request_id"`
		} `json:"meta"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		meta.requestID = envelope.Meta.RequestID
	}
	return res, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paddle %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paddle %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "secret", "email", "key"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidPaddleEnv
	}
}
