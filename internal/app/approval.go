package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/observability"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

// ApprovalService is the back-office gate between "captured" and
// "cleared for disbursement". It never touches the booking: the guest's
// payment_status stays paid from the moment of capture.
type ApprovalService struct {
	repo domain.RentalRepository
}

func NewApprovalService(r domain.RentalRepository) *ApprovalService {
	return &ApprovalService{repo: r}
}

// Approve moves a payment captured -> approved exactly once, stamping the
// approver and timestamp. A second call returns the already-approved
// record and ErrAlreadyApproved; the stamp never changes.
func (s *ApprovalService) Approve(ctx context.Context, paymentID, approverID int64) (domain.Payment, error) {
	p, err := s.repo.ApprovePayment(ctx, paymentID, approverID)
	if err != nil {
		return p, err
	}
	observability.ObserveApproval("approved")
	log.Info().
		Int64("payment_id", p.ID).
		Int64("approver_id", approverID).
		Str("receipt", p.ReceiptNumber).
		Msg("payment approved for disbursement")
	return p, nil
}

func (s *ApprovalService) ListPending(ctx context.Context) ([]domain.Payment, error) {
	return s.repo.ListPendingPayments(ctx)
}
