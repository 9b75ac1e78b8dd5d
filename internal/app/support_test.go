package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	properties []domain.Property
	rooms      map[int64][]domain.Room // by property

	listRoomsCalls int
	createCalls    int

	createErr  error
	settleSeq  int64
	settled    []domain.Settlement
	byKey      map[string]domain.SettlementOutcome
	outbox     []domain.OutboxEntry
	pending    []domain.Payment
	approveErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rooms: map[int64][]domain.Room{}, byKey: map[string]domain.SettlementOutcome{}}
}

func (f *fakeRepo) ListPublishedProperties(ctx context.Context) ([]domain.Property, error) {
	return f.properties, nil
}

func (f *fakeRepo) ListRoomsForProperty(ctx context.Context, propertyID int64) ([]domain.Room, error) {
	f.listRoomsCalls++
	return f.rooms[propertyID], nil
}

func (f *fakeRepo) GetRoom(ctx context.Context, roomID int64) (domain.Room, error) {
	for _, rs := range f.rooms {
		for _, r := range rs {
			if r.ID == roomID {
				return r, nil
			}
		}
	}
	return domain.Room{}, fmt.Errorf("%w: room %d", domain.ErrNotFound, roomID)
}

func (f *fakeRepo) CreateSettlement(ctx context.Context, s domain.Settlement) (domain.SettlementOutcome, error) {
	f.createCalls++
	if f.createErr != nil {
		return domain.SettlementOutcome{}, f.createErr
	}
	if out, ok := f.byKey[s.Payment.IdempotencyKey]; ok {
		out.Replayed = true
		return out, nil
	}
	f.settleSeq++
	p := s.Payment
	p.ID = f.settleSeq
	b := s.Booking
	b.ID = f.settleSeq
	out := domain.SettlementOutcome{Payment: p, Booking: b}
	f.byKey[p.IdempotencyKey] = out
	f.settled = append(f.settled, s)
	return out, nil
}

func (f *fakeRepo) PaymentByKey(ctx context.Context, key string) (domain.Payment, domain.Booking, error) {
	if out, ok := f.byKey[key]; ok {
		return out.Payment, out.Booking, nil
	}
	return domain.Payment{}, domain.Booking{}, domain.ErrNotFound
}

func (f *fakeRepo) ApprovePayment(ctx context.Context, paymentID, approverID int64) (domain.Payment, error) {
	if f.approveErr != nil {
		return domain.Payment{}, f.approveErr
	}
	for _, out := range f.byKey {
		if out.Payment.ID == paymentID {
			p := out.Payment
			if p.Approved() {
				return p, domain.ErrAlreadyApproved
			}
			now := time.Now()
			p.State = domain.SettlementApproved
			p.ApprovedAt = &now
			p.ApprovedBy = &approverID
			out.Payment = p
			f.byKey[p.IdempotencyKey] = out
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrNotFound
}

func (f *fakeRepo) ListPendingPayments(ctx context.Context) ([]domain.Payment, error) {
	return f.pending, nil
}

func (f *fakeRepo) EnqueueOutbox(ctx context.Context, e domain.OutboxEntry) error {
	f.outbox = append(f.outbox, e)
	return nil
}

func (f *fakeRepo) DueOutbox(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	return f.outbox, nil
}

func (f *fakeRepo) ResolveOutbox(ctx context.Context, id int64) error { return nil }

func (f *fakeRepo) RescheduleOutbox(ctx context.Context, id int64, attempts int, next time.Time) error {
	return nil
}

// fakeCache stores JSON so any value type round-trips like redis would.
type fakeCache struct {
	store map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	return nil
}

type fakeGateway struct {
	captureErr error
	captures   []domain.CaptureRequest
}

func (g *fakeGateway) Capture(ctx context.Context, req domain.CaptureRequest) (domain.CaptureResult, error) {
	if g.captureErr != nil {
		return domain.CaptureResult{}, g.captureErr
	}
	g.captures = append(g.captures, req)
	return domain.CaptureResult{
		Reference:  fmt.Sprintf("GW-%03d", len(g.captures)),
		CapturedAt: time.Date(2025, time.May, 2, 10, 0, 0, 0, time.UTC),
	}, nil
}

var errBoom = errors.New("boom")
