package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashupal86/GraminStore/internal/models"
)

func TestPushTransactionPayload(t *testing.T) {
	var got map[string]interface{}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/transactions/create", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-123")
	err := c.PushTransaction(context.Background(), models.Transaction{
		MerchantID:      7,
		CustomerName:    "Asha",
		Amount:          120,
		PaymentKind:     models.PaymentPayLater,
		Description:     "groceries",
		ReferenceNumber: "TXN_7_DEADBEEF",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-123", auth)
	assert.Equal(t, 120.0, got["amount"])
	assert.Equal(t, "pay_later", got["type"])
	assert.Equal(t, "groceries", got["description"])
	assert.Equal(t, "TXN_7_DEADBEEF", got["reference_number"])
	assert.Equal(t, true, got["is_guest_transaction"])
}

func TestPushTransactionInstantMapsToPayed(t *testing.T) {
	var got map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	err := c.PushTransaction(context.Background(), models.Transaction{
		Amount:      50,
		PaymentKind: models.PaymentInstant,
	})
	require.NoError(t, err)
	assert.Equal(t, "payed", got["type"])
}

func TestPushAggregatePayload(t *testing.T) {
	var got map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/guest-users", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	last := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	c := NewClient(srv.URL, "token-123")
	err := c.PushAggregate(context.Background(), models.CustomerAggregate{
		MerchantID:        7,
		CustomerName:      "Asha",
		CustomerPhone:     "9876500001",
		TotalTransactions: 3,
		TotalAmount:       275,
		LastTransactionAt: last,
	})
	require.NoError(t, err)

	assert.Equal(t, "Asha", got["customer_name"])
	assert.Equal(t, "9876500001", got["customer_phone"])
	assert.Equal(t, 3.0, got["total_transactions"])
	assert.Equal(t, 275.0, got["total_amount"])
	assert.Equal(t, "2024-05-01T10:30:00Z", got["last_transaction_date"])
}

func TestPushSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"duplicate reference"}`, http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-123")
	err := c.PushTransaction(context.Background(), models.Transaction{Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "duplicate reference")
}

func TestHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	assert.NoError(t, c.Health(context.Background()))

	healthy = false
	assert.Error(t, c.Health(context.Background()))
}
