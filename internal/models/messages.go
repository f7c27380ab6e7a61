package models

import (
	"encoding/json"
	"time"
)

// Realtime message types pushed by the remote authority
const (
	MessageTypeNewOrder     = "new_order"
	MessageTypeOrdersUpdate = "orders_update"
	MessageTypePong         = "pong"

	// MessageTypeChannelFailed is synthesized locally when the channel gives
	// up reconnecting; it never arrives over the wire.
	MessageTypeChannelFailed = "channel_failed"

	// MessageTypeWildcard subscribes to every inbound message.
	MessageTypeWildcard = "*"
)

// Envelope is the wire format of every realtime message
type Envelope struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	MerchantID int64           `json:"merchant_id,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// NewOrderData is the payload of a new_order message
type NewOrderData struct {
	TransactionID   int64   `json:"transaction_id"`
	UserID          int64   `json:"user_id,omitempty"`
	GuestUserID     int64   `json:"guest_user_id,omitempty"`
	Amount          float64 `json:"amount"`
	Type            string  `json:"type"`
	Description     string  `json:"description,omitempty"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
	ReferenceNumber string  `json:"reference_number,omitempty"`
	IsGuestOrder    bool    `json:"is_guest_order"`
}

// OrdersUpdateData is the payload of an orders_update message
type OrdersUpdateData []NewOrderData

// ChannelFailedData is the payload of the locally synthesized channel_failed message
type ChannelFailedData struct {
	Attempts int       `json:"attempts"`
	LastErr  string    `json:"last_error,omitempty"`
	At       time.Time `json:"at"`
}

// DecodeNewOrder decodes the envelope payload as a new_order
func (e Envelope) DecodeNewOrder() (NewOrderData, error) {
	var d NewOrderData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// DecodeOrdersUpdate decodes the envelope payload as an orders_update
func (e Envelope) DecodeOrdersUpdate() (OrdersUpdateData, error) {
	var d OrdersUpdateData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// Known reports whether the message type is one the client understands.
// Unknown types are still dispatched to wildcard subscribers for forward
// compatibility.
func (e Envelope) Known() bool {
	switch e.Type {
	case MessageTypeNewOrder, MessageTypeOrdersUpdate, MessageTypePong, MessageTypeChannelFailed:
		return true
	}
	return false
}
