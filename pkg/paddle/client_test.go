package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salymed/salymed-backend/pkg/config"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

type capturedTransaction struct {
	Items []struct {
		PriceID  string `json:"price_id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	CustomerID string            `json:"customer_id"`
	CustomData map[string]string `json:"custom_data"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logg := logger.New(logger.Options{ServiceName: "paddle-test", Output: &bytes.Buffer{}})
	client, err := NewClient(context.Background(), config.PaddleConfig{
		APIKey:      "pdl_test_key",
		Environment: "sandbox",
		BaseURL:     srv.URL,
		Timeout:     2 * time.Second,
	}, logg)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

const readyTransaction = `{"data":{"id":"txn_1","status":"ready","checkout":{"url":"https://pay.example/checkout?_ptxn=txn_1"}},"meta":{"request_id":"req"}}`

func TestCreateTransactionSendsItemsAndCustomData(t *testing.T) {
	var captured capturedTransaction
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer pdl_test_key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			require.Equal(t, "a@b.com", r.URL.Query().Get("email"))
			writeJSON(w, http.StatusOK, `{"data":[{"id":"ctm_7","email":"a@b.com"}],"meta":{"request_id":"req"}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/transactions":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			writeJSON(w, http.StatusCreated, readyTransaction)
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	})

	txn, err := client.CreateTransaction(context.Background(), TransactionRequest{
		PriceID:       "pri_basic",
		CustomerEmail: "a@b.com",
		CustomData:    map[string]string{"clinic_id": "c1", "plan_id": "p2"},
		SuccessURL:    "http://localhost:4200/payment-success",
	})
	require.NoError(t, err)
	require.Equal(t, "txn_1", txn.ID)
	require.Equal(t, "ready", txn.Status)
	require.Equal(t, "https://pay.example/checkout?_ptxn=txn_1", txn.CheckoutURL)

	require.Len(t, captured.Items, 1)
	require.Equal(t, "pri_basic", captured.Items[0].PriceID)
	require.Equal(t, 1, captured.Items[0].Quantity)
	require.Equal(t, "ctm_7", captured.CustomerID)
	require.Equal(t, "c1", captured.CustomData["clinic_id"])
	require.Equal(t, "p2", captured.CustomData["plan_id"])
	require.Equal(t, "http://localhost:4200/payment-success", captured.CustomData["success_url"])
}

func TestCreateTransactionCreatesMissingCustomer(t *testing.T) {
	var created int32
	var captured capturedTransaction
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			writeJSON(w, http.StatusOK, `{"data":[],"meta":{"request_id":"req"}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			atomic.AddInt32(&created, 1)
			var body struct {
				Email string `json:"email"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "new@b.com", body.Email)
			writeJSON(w, http.StatusCreated, `{"data":{"id":"ctm_new","email":"new@b.com"},"meta":{"request_id":"req"}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/transactions":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			writeJSON(w, http.StatusCreated, readyTransaction)
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	})

	_, err := client.CreateTransaction(context.Background(), TransactionRequest{PriceID: "pri_basic", CustomerEmail: "new@b.com"})
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&created))
	require.Equal(t, "ctm_new", captured.CustomerID)
}

func TestCreateTransactionSkipsCustomerWithoutEmail(t *testing.T) {
	var captured capturedTransaction
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusCreated, readyTransaction)
	})

	_, err := client.CreateTransaction(context.Background(), TransactionRequest{PriceID: "pri_basic"})
	require.NoError(t, err)
	require.Empty(t, captured.CustomerID)
	_, hasSuccess := captured.CustomData["success_url"]
	require.False(t, hasSuccess)
}

func TestCreateTransactionMapsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":{"type":"request_error","code":"price_not_found","detail":"price pri_x not found"},"meta":{"request_id":"req-9"}}`)
	})

	_, err := client.CreateTransaction(context.Background(), TransactionRequest{PriceID: "pri_x"})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "request_error", apiErr.Type)
	require.Equal(t, "price_not_found", apiErr.Code)
	require.Equal(t, "price pri_x not found", apiErr.Detail)
	require.Equal(t, "req-9", apiErr.RequestID)
	require.Equal(t, "req-9", apiErr.GatewayRequestID())
}

func TestCreateTransactionMapsCustomerLookupError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customers", r.URL.Path)
		writeJSON(w, http.StatusForbidden, `{"error":{"type":"request_error","code":"forbidden","detail":"key lacks customer.read"},"meta":{"request_id":"req-c"}}`)
	})

	_, err := client.CreateTransaction(context.Background(), TransactionRequest{PriceID: "pri_basic", CustomerEmail: "a@b.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Equal(t, "req-c", apiErr.RequestID)
}

func TestCreateTransactionRejectsMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"data":{"status":"ready"}}`)
	})

	_, err := client.CreateTransaction(context.Background(), TransactionRequest{PriceID: "pri_basic"})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	require.ErrorIs(t, err, errMissingCheckoutID)
}

func TestCreateTransactionRejectsMissingCheckoutURL(t *testing.T) {
	for name, body := range map[string]string{
		"null checkout": `{"data":{"id":"txn_1","status":"ready","checkout":null}}`,
		"empty url":     `{"data":{"id":"txn_1","status":"ready","checkout":{"url":""}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusCreated, body)
			})

			txn, err := client.CreateTransaction(context.Background(), TransactionRequest{PriceID: "pri_basic"})
			require.Nil(t, txn)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
			require.ErrorIs(t, err, errMissingCheckoutURL)
		})
	}
}

func TestCreateTransactionHonoursTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.CreateTransaction(ctx, TransactionRequest{PriceID: "pri_basic"})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestCreateTransactionRequiresPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway should not be called without a price")
	})
	_, err := client.CreateTransaction(context.Background(), TransactionRequest{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "paddle-test", Output: &bytes.Buffer{}})

	_, err := NewClient(context.Background(), config.PaddleConfig{Environment: "sandbox"}, logg)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.PaddleConfig{APIKey: "k", Environment: "staging"}, logg)
	require.ErrorIs(t, err, errInvalidPaddleEnv)

	_, err = NewClient(context.Background(), config.PaddleConfig{APIKey: "k"}, nil)
	require.ErrorIs(t, err, errLoggerRequired)

	prod, err := NewClient(context.Background(), config.PaddleConfig{APIKey: "k", Environment: "Production"}, logg)
	require.NoError(t, err)
	require.Equal(t, "https://api.paddle.com", prod.baseURL)

	sandbox, err := NewClient(context.Background(), config.PaddleConfig{APIKey: "k"}, logg)
	require.NoError(t, err)
	require.Equal(t, "https://sandbox-api.paddle.com", sandbox.baseURL)
}
