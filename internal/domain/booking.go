package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// SettlementState keeps "capture succeeded" and "cleared for disbursement"
// apart in the type system. A payment reads paid to the guest from the moment
// of capture; funds are released to the owner only once approved.
type SettlementState string

const (
	SettlementCaptured SettlementState = "captured"
	SettlementApproved SettlementState = "approved"
)

type Booking struct {
	ID            int64
	PropertyID    int64
	RoomID        int64
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	CheckIn       time.Time
	CheckOut      time.Time // exclusive
	TotalAmount   decimal.Decimal
	PaymentStatus PaymentStatus
	PaymentRef    string
	Status        BookingStatus
	CreatedAt     time.Time
}

type Payment struct {
	ID             int64
	Amount         decimal.Decimal
	Method         string
	PayerName      string
	PayerEmail     string
	PayerPhone     string
	Reference      string
	ReceiptNumber  string
	IdempotencyKey string
	State          SettlementState
	ApprovedAt     *time.Time
	ApprovedBy     *int64
	CreatedAt      time.Time
}

func (p Payment) Approved() bool { return p.State == SettlementApproved }

// Settlement is the unit the repository persists atomically: one payment
// and the booking it funds.
type Settlement struct {
	Payment Payment
	Booking Booking
}

// SettlementOutcome reports what the repository actually did. Replayed is
// true when the idempotency key matched an existing payment and no new
// records were written.
type SettlementOutcome struct {
	Payment  Payment
	Booking  Booking
	Replayed bool
}

// OutboxEntry is a settlement step that captured funds but failed to
// persist; the reconciler replays it until it sticks.
type OutboxEntry struct {
	ID            int64
	Kind          string // settlement_replay | orphan_capture
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	ResolvedAt    *time.Time
	CreatedAt     time.Time
}

const (
	OutboxSettlementReplay = "settlement_replay"
	OutboxOrphanCapture    = "orphan_capture"
)
