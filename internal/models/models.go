package models

import (
	"errors"
	"time"
)

// PaymentKind distinguishes immediate payments from pay-later (credit/tab) ones
type PaymentKind string

const (
	PaymentInstant  PaymentKind = "instant"
	PaymentPayLater PaymentKind = "pay_later"
)

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusCancelled TransactionStatus = "cancelled"
)

// SyncState tracks whether a record has been acknowledged by the remote authority
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// Store-level validation errors
var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("illegal status transition")
)

// Transaction represents a single POS transaction
type Transaction struct {
	ID              int64             `json:"id"`
	MerchantID      int64             `json:"merchant_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerPhone   string            `json:"customer_phone,omitempty"`
	Amount          float64           `json:"amount"`
	Description     string            `json:"description,omitempty"`
	PaymentKind     PaymentKind       `json:"payment_kind"`
	Status          TransactionStatus `json:"status"`
	ReferenceNumber string            `json:"reference_number"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	SyncState       SyncState         `json:"sync_state"`
}

// CustomerAggregate holds per-customer running totals derived from the
// transaction stream. It is never authored directly.
type CustomerAggregate struct {
	ID                int64     `json:"id"`
	MerchantID        int64     `json:"merchant_id"`
	CustomerName      string    `json:"customer_name"`
	CustomerPhone     string    `json:"customer_phone,omitempty"`
	TotalTransactions int64     `json:"total_transactions"`
	TotalAmount       float64   `json:"total_amount"`
	LastTransactionAt time.Time `json:"last_transaction_at"`
	SyncState         SyncState `json:"sync_state"`
}

// AggregateSnapshot breaks a customer's totals down by payment kind
type AggregateSnapshot struct {
	CustomerAggregate
	PaidAmount    float64 `json:"paid_amount"`
	PendingAmount float64 `json:"pending_amount"`
}

// Settings is the per-merchant settings record, unique per merchant
type Settings struct {
	ID            int64  `json:"id"`
	MerchantID    int64  `json:"merchant_id"`
	Language      string `json:"language"`
	AutoSync      bool   `json:"auto_sync"`
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
}

// CalculationEntry is a local-only audit record of calculator usage
type CalculationEntry struct {
	ID         int64     `json:"id"`
	MerchantID int64     `json:"merchant_id"`
	Expression string    `json:"expression"`
	Result     string    `json:"result"`
	CreatedAt  time.Time `json:"created_at"`
}

// MerchantAnalytics summarizes a merchant's transactions over a trailing window
type MerchantAnalytics struct {
	TotalSales        float64 `json:"total_sales"`
	TotalPending      float64 `json:"total_pending"`
	TotalTransactions int64   `json:"total_transactions"`
	AvgTransaction    float64 `json:"avg_transaction"`
}

// CanTransitionTo reports whether a status change is legal. Completed and
// Cancelled are terminal.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusCancelled)
}

// InitialStatus returns the status a freshly created transaction gets:
// instant payments complete immediately, pay-later starts pending.
func (k PaymentKind) InitialStatus() TransactionStatus {
	if k == PaymentInstant {
		return StatusCompleted
	}
	return StatusPending
}

// Valid reports whether k is a known payment kind.
func (k PaymentKind) Valid() bool {
	return k == PaymentInstant || k == PaymentPayLater
}
