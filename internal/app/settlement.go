package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/observability"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

// Intent is a fully assembled booking request, validated before any money
// moves. Amount is recomputed server-side from the room's rent; the
// client-quoted figure is never trusted.
type Intent struct {
	IdempotencyKey string    `validate:"omitempty,max=96"`
	PropertyID     int64     `validate:"required,gt=0"`
	RoomID         int64     `validate:"required,gt=0"`
	CheckIn        time.Time `validate:"required"`
	CheckOut       time.Time `validate:"required,gtfield=CheckIn"`
	Method         string    `validate:"required,oneof=card momo bank"`
	GuestName      string    `validate:"required,max=120"`
	GuestEmail     string    `validate:"omitempty,email"`
	GuestPhone     string    `validate:"required,min=7,max=20"`
}

// Receipt is what the wizard shows on the success screen.
type Receipt struct {
	PaymentID     int64           `json:"payment_id"`
	Reference     string          `json:"reference"`
	ReceiptNumber string          `json:"receipt_number"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	PropertyID    int64           `json:"property_id"`
	RoomID        int64           `json:"room_id"`
	CapturedAt    time.Time       `json:"captured_at"`
	// Reconciling is set when funds were captured but the booking record
	// could not be written; the reconciler will replay it.
	Reconciling bool `json:"reconciling,omitempty"`
}

type SettlementService struct {
	repo     domain.RentalRepository
	gateway  domain.PaymentGateway
	validate *validator.Validate
	currency string
	clock    func() time.Time
}

func NewSettlementService(r domain.RentalRepository, g domain.PaymentGateway, currency string) *SettlementService {
	return &SettlementService{
		repo:     r,
		gateway:  g,
		validate: validator.New(),
		currency: currency,
		clock:    time.Now,
	}
}

// Settle runs the two-phase capture-then-record workflow. Once invoked it
// runs to completion; there is no cancellation path mid-settlement.
func (s *SettlementService) Settle(ctx context.Context, intent Intent) (Receipt, error) {
	if err := s.validate.Struct(intent); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	key := intent.IdempotencyKey
	if key == "" {
		key = DeriveIdempotencyKey(intent)
	}

	// A retry after a client timeout must not charge twice.
	if p, b, err := s.repo.PaymentByKey(ctx, key); err == nil {
		log.Info().Str("key", key).Int64("payment_id", p.ID).Msg("settlement replayed from idempotency key")
		return receiptFrom(p, b), nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Receipt{}, err
	}

	room, err := s.repo.GetRoom(ctx, intent.RoomID)
	if err != nil {
		return Receipt{}, err
	}
	if room.PropertyID != intent.PropertyID {
		return Receipt{}, fmt.Errorf("%w: room %d does not belong to property %d", domain.ErrValidation, intent.RoomID, intent.PropertyID)
	}

	// Re-resolve at submission time; the wizard's earlier answer may be stale.
	if st := ResolveRoom(room, s.clock()); st != domain.StatusAvailable {
		observability.ObserveSettlement("conflict")
		return Receipt{}, fmt.Errorf("%w: room %d is %s", domain.ErrRoomUnavailable, room.ID, st)
	}

	quote := Quote(decimal.NewFromInt(room.MonthlyRent), intent.CheckIn, intent.CheckOut)

	captured, err := s.gateway.Capture(ctx, domain.CaptureRequest{
		Amount:         quote.TotalAmount,
		Currency:       s.currency,
		Method:         intent.Method,
		PayerName:      intent.GuestName,
		PayerEmail:     intent.GuestEmail,
		PayerPhone:     intent.GuestPhone,
		IdempotencyKey: key,
	})
	if err != nil {
		observability.ObserveSettlement("capture_failed")
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrPaymentCapture, err)
	}

	settlement := s.buildSettlement(intent, room, key, quote.TotalAmount, captured)

	outcome, err := s.repo.CreateSettlement(ctx, settlement)
	switch {
	case err == nil:
		if outcome.Replayed {
			observability.ObserveSettlement("replayed")
		} else {
			observability.ObserveSettlement("confirmed")
		}
		return receiptFrom(outcome.Payment, outcome.Booking), nil

	case errors.Is(err, domain.ErrRoomUnavailable):
		// A racing settlement won after our capture. The captured funds
		// are flagged for manual reconciliation; the caller is told to
		// pick another room.
		observability.ObserveSettlement("conflict")
		log.Error().
			Str("reference", captured.Reference).
			Int64("room_id", room.ID).
			Msg("capture succeeded but room was booked concurrently; flagging orphan capture")
		s.enqueue(ctx, domain.OutboxOrphanCapture, settlement)
		return Receipt{}, err

	default:
		// Funds moved with no matching reservation. Log loudly, queue the
		// replay, and still route the guest to success.
		observability.ObserveSettlement("persistence_failed")
		log.Error().Err(err).
			Str("reference", captured.Reference).
			Int64("room_id", room.ID).
			Msg("payment captured but settlement persistence failed; queuing for reconciliation")
		s.enqueue(ctx, domain.OutboxSettlementReplay, settlement)
		r := receiptFrom(settlement.Payment, settlement.Booking)
		r.Reconciling = true
		return r, nil
	}
}

// QuoteRoom prices a stay against a room's current rent. Pure read; the
// public quote endpoint uses it for previews.
func (s *SettlementService) QuoteRoom(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (domain.Quote, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Quote{}, err
	}
	return Quote(decimal.NewFromInt(room.MonthlyRent), checkIn, checkOut), nil
}

// Replay re-attempts a persisted settlement from the outbox. Idempotent:
// a key that already landed comes back as a replayed outcome.
func (s *SettlementService) Replay(ctx context.Context, settlement domain.Settlement) error {
	_, err := s.repo.CreateSettlement(ctx, settlement)
	return err
}

func (s *SettlementService) buildSettlement(intent Intent, room domain.Room, key string, amount decimal.Decimal, captured domain.CaptureResult) domain.Settlement {
	return domain.Settlement{
		Payment: domain.Payment{
			Amount:         amount,
			Method:         intent.Method,
			PayerName:      intent.GuestName,
			PayerEmail:     intent.GuestEmail,
			PayerPhone:     intent.GuestPhone,
			Reference:      captured.Reference,
			ReceiptNumber:  newReceiptNumber(captured.CapturedAt),
			IdempotencyKey: key,
			State:          domain.SettlementCaptured,
			CreatedAt:      captured.CapturedAt,
		},
		Booking: domain.Booking{
			PropertyID:    room.PropertyID,
			RoomID:        room.ID,
			GuestName:     intent.GuestName,
			GuestEmail:    intent.GuestEmail,
			GuestPhone:    intent.GuestPhone,
			CheckIn:       intent.CheckIn,
			CheckOut:      intent.CheckOut,
			TotalAmount:   amount,
			PaymentStatus: domain.PaymentPaid,
			PaymentRef:    captured.Reference,
			Status:        domain.BookingConfirmed,
			CreatedAt:     captured.CapturedAt,
		},
	}
}

func (s *SettlementService) enqueue(ctx context.Context, kind string, settlement domain.Settlement) {
	payload, err := json.Marshal(settlement)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbox payload failed")
		return
	}
	e := domain.OutboxEntry{Kind: kind, Payload: payload, NextAttemptAt: s.clock()}
	if err := s.repo.EnqueueOutbox(ctx, e); err != nil {
		// Worst case: capture exists only in the gateway and our logs.
		log.Error().Err(err).Str("kind", kind).Msg("outbox enqueue failed; manual reconciliation required")
	}
}

func receiptFrom(p domain.Payment, b domain.Booking) Receipt {
	return Receipt{
		PaymentID:     p.ID,
		Reference:     p.Reference,
		ReceiptNumber: p.ReceiptNumber,
		Amount:        p.Amount,
		Method:        p.Method,
		PropertyID:    b.PropertyID,
		RoomID:        b.RoomID,
		CapturedAt:    p.CreatedAt,
	}
}

// DeriveIdempotencyKey hashes the intent's identifying fields so a
// resubmitted wizard session maps onto the same settlement.
func DeriveIdempotencyKey(intent Intent) string {
	h := sha256.Sum256([]byte(fmt.Sprintf(
		"settle:room=%d:in=%s:out=%s:phone=%s",
		intent.RoomID,
		intent.CheckIn.Format("2006-01-02"),
		intent.CheckOut.Format("2006-01-02"),
		intent.GuestPhone,
	)))
	return "settle-" + hex.EncodeToString(h[:8])
}

func newReceiptNumber(at time.Time) string {
	return fmt.Sprintf("RCPT-%s-%s", at.Format("20060102"), uuid.NewString()[:8])
}
