package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RentalRepository is the narrow surface the core needs from the remote
// store. Room status never crosses this boundary: rooms come back annotated
// with their active leases and the caller derives status from those.
type RentalRepository interface {
	// Read paths
	ListPublishedProperties(ctx context.Context) ([]Property, error)
	ListRoomsForProperty(ctx context.Context, propertyID int64) ([]Room, error)
	GetRoom(ctx context.Context, roomID int64) (Room, error)

	// Settlement. CreateSettlement writes payment and booking in one
	// transaction; under a racing date-range overlap only one caller wins
	// and the loser gets ErrRoomUnavailable. A repeated idempotency key
	// returns the original records with Replayed=true.
	CreateSettlement(ctx context.Context, s Settlement) (SettlementOutcome, error)
	PaymentByKey(ctx context.Context, idempotencyKey string) (Payment, Booking, error)

	// Approval gate
	ApprovePayment(ctx context.Context, paymentID, approverID int64) (Payment, error)
	ListPendingPayments(ctx context.Context) ([]Payment, error)

	// Reconciliation outbox
	EnqueueOutbox(ctx context.Context, e OutboxEntry) error
	DueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)
	ResolveOutbox(ctx context.Context, id int64) error
	RescheduleOutbox(ctx context.Context, id int64, attempts int, next time.Time) error
}

// PaymentGateway captures funds. Capture is not cancellable mid-flight;
// once invoked it runs to success or error.
type PaymentGateway interface {
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
}

type CaptureRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Method         string
	PayerName      string
	PayerEmail     string
	PayerPhone     string
	IdempotencyKey string
}

type CaptureResult struct {
	Reference  string
	CapturedAt time.Time
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// PropertyView annotates a published property with how many of its rooms
// currently resolve available.
type PropertyView struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	City           *string `json:"city,omitempty"`
	AvailableRooms int     `json:"available_rooms"`
	TotalRooms     int     `json:"total_rooms"`
}

// Quote is what the pricing engine hands the wizard whenever dates change.
type Quote struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	// BillableMonths is the exact figure the total derives from.
	BillableMonths decimal.Decimal `json:"billable_months"`
	// DurationMonths is the coarser display figure (days/30.44); it can
	// visibly disagree with BillableMonths and that is preserved as-is.
	DurationMonths int `json:"duration_months"`
}
