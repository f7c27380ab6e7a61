// Package remote is the HTTP client for the GraminStore remote authority.
// The authority is consumed, never served: the ledger only needs transaction
// and aggregate pushes plus a health probe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashupal86/GraminStore/internal/models"
)

const defaultTimeout = 15 * time.Second

// Client pushes local records to the remote authority
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a remote authority client. token is the bearer credential
// attached to every authenticated call.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// transactionPayload mirrors the authority's create-transaction request body
type transactionPayload struct {
	Amount             float64 `json:"amount"`
	Type               string  `json:"type"`
	Description        string  `json:"description,omitempty"`
	PaymentMethod      string  `json:"payment_method,omitempty"`
	ReferenceNumber    string  `json:"reference_number,omitempty"`
	IsGuestTransaction bool    `json:"is_guest_transaction"`
}

// aggregatePayload mirrors the authority's guest-user totals upsert body
type aggregatePayload struct {
	CustomerName        string  `json:"customer_name"`
	CustomerPhone       string  `json:"customer_phone,omitempty"`
	TotalTransactions   int64   `json:"total_transactions"`
	TotalAmount         float64 `json:"total_amount"`
	LastTransactionDate string  `json:"last_transaction_date"`
}

// PushTransaction sends one transaction to the authority. A nil return means
// the record was acknowledged and may be marked Synced.
func (c *Client) PushTransaction(ctx context.Context, txn models.Transaction) error {
	kind := "payed"
	if txn.PaymentKind == models.PaymentPayLater {
		kind = "pay_later"
	}

	payload := transactionPayload{
		Amount:             txn.Amount,
		Type:               kind,
		Description:        txn.Description,
		ReferenceNumber:    txn.ReferenceNumber,
		IsGuestTransaction: true,
	}

	return c.post(ctx, "/api/v1/transactions/create", payload)
}

// PushAggregate sends a customer's running totals to the authority
func (c *Client) PushAggregate(ctx context.Context, agg models.CustomerAggregate) error {
	payload := aggregatePayload{
		CustomerName:        agg.CustomerName,
		CustomerPhone:       agg.CustomerPhone,
		TotalTransactions:   agg.TotalTransactions,
		TotalAmount:         agg.TotalAmount,
		LastTransactionDate: agg.LastTransactionAt.UTC().Format(time.RFC3339),
	}

	return c.post(ctx, "/api/v1/transactions/guest-users", payload)
}

// Health probes the authority's health endpoint. Used as the connectivity signal.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("authority rejected push: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
