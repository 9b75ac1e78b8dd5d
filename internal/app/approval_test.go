package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/app"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

func TestApprove_OnceOnly(t *testing.T) {
	ctx := context.Background()
	repo := settledRepo()
	settler := app.NewSettlementService(repo, &fakeGateway{}, "RWF")

	receipt, err := settler.Settle(ctx, validIntent())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	svc := app.NewApprovalService(repo)

	p, err := svc.Approve(ctx, receipt.PaymentID, 42)
	if err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if p.State != domain.SettlementApproved {
		t.Fatalf("state: want approved, got %s", p.State)
	}
	if p.ApprovedAt == nil || p.ApprovedBy == nil || *p.ApprovedBy != 42 {
		t.Fatalf("approval stamp missing: %+v", p)
	}
	firstStamp := *p.ApprovedAt

	time.Sleep(5 * time.Millisecond)
	again, err := svc.Approve(ctx, receipt.PaymentID, 99)
	if !errors.Is(err, domain.ErrAlreadyApproved) {
		t.Fatalf("second approve: want ErrAlreadyApproved, got %v", err)
	}
	if again.ApprovedAt == nil || !again.ApprovedAt.Equal(firstStamp) {
		t.Fatalf("stamp must not change on replay")
	}
	if again.ApprovedBy == nil || *again.ApprovedBy != 42 {
		t.Fatalf("approver must not change on replay, got %v", again.ApprovedBy)
	}
}

func TestApprove_UnknownPayment(t *testing.T) {
	svc := app.NewApprovalService(newFakeRepo())
	if _, err := svc.Approve(context.Background(), 404, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListPending(t *testing.T) {
	repo := newFakeRepo()
	repo.pending = []domain.Payment{{ID: 1, State: domain.SettlementCaptured}}
	svc := app.NewApprovalService(repo)

	got, err := svc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("pending: %+v", got)
	}
}
