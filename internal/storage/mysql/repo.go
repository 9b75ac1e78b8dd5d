package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	godrv "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

const dupKeyErr = 1062

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strOf(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func moneyOf(raw []byte) decimal.Decimal {
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (r *Repo) ListPublishedProperties(ctx context.Context) ([]domain.Property, error) {
	rows, err := r.db.QueryContext(ctx, listPropertiesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Property
	for rows.Next() {
		var p domain.Property
		var city sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &city); err != nil {
			return nil, err
		}
		if city.Valid {
			c := city.String
			p.City = &c
		}
		p.Published = true
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) ListRoomsForProperty(ctx context.Context, propertyID int64) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, listRoomsSQL, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoomRows(rows)
}

func (r *Repo) GetRoom(ctx context.Context, roomID int64) (domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, getRoomSQL, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	defer rows.Close()

	rooms, err := scanRoomRows(rows)
	if err != nil {
		return domain.Room{}, err
	}
	if len(rooms) == 0 {
		return domain.Room{}, fmt.Errorf("%w: room %d", domain.ErrNotFound, roomID)
	}
	return rooms[0], nil
}

// scanRoomRows folds the room x lease join back into rooms with lease
// slices. Rows arrive ordered by room id.
func scanRoomRows(rows *sql.Rows) ([]domain.Room, error) {
	var out []domain.Room
	for rows.Next() {
		var (
			rm       domain.Room
			leaseID  sql.NullInt64
			tenantID sql.NullInt64
			moveIn   sql.NullTime
			moveOut  sql.NullTime
			active   sql.NullBool
		)
		if err := rows.Scan(
			&rm.ID, &rm.PropertyID, &rm.Number, &rm.Floor, &rm.MonthlyRent, &rm.Maintenance,
			&leaseID, &tenantID, &moveIn, &moveOut, &active,
		); err != nil {
			return nil, err
		}

		if len(out) == 0 || out[len(out)-1].ID != rm.ID {
			out = append(out, rm)
		}
		if leaseID.Valid {
			l := domain.Lease{
				ID:       leaseID.Int64,
				RoomID:   rm.ID,
				TenantID: tenantID.Int64,
				MoveIn:   moveIn.Time,
				Active:   active.Bool,
			}
			if moveOut.Valid {
				t := moveOut.Time
				l.MoveOut = &t
			}
			last := &out[len(out)-1]
			last.Leases = append(last.Leases, l)
		}
	}
	return out, rows.Err()
}

// CreateSettlement writes the payment and its booking in one transaction.
// The room row is locked first, then confirmed bookings are checked for a
// date-range overlap; of two racing settlements exactly one commits and
// the other gets ErrRoomUnavailable. A duplicate idempotency key short-
// circuits to the already-persisted pair.
func (r *Repo) CreateSettlement(ctx context.Context, s domain.Settlement) (domain.SettlementOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SettlementOutcome{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var roomID int64
	if err := tx.QueryRowContext(ctx, lockRoomSQL, s.Booking.RoomID).Scan(&roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SettlementOutcome{}, fmt.Errorf("%w: room %d", domain.ErrNotFound, s.Booking.RoomID)
		}
		return domain.SettlementOutcome{}, err
	}

	var overlapping int
	err = tx.QueryRowContext(ctx, overlapCountSQL,
		s.Booking.RoomID, s.Booking.CheckOut, s.Booking.CheckIn,
	).Scan(&overlapping)
	if err != nil {
		return domain.SettlementOutcome{}, err
	}
	if overlapping > 0 {
		return domain.SettlementOutcome{}, fmt.Errorf("%w: confirmed booking overlaps", domain.ErrRoomUnavailable)
	}

	res, err := tx.ExecContext(ctx, insertPaymentSQL,
		s.Payment.Amount.StringFixed(0),
		s.Payment.Method,
		s.Payment.PayerName,
		nullStr(s.Payment.PayerEmail),
		s.Payment.PayerPhone,
		s.Payment.Reference,
		s.Payment.ReceiptNumber,
		s.Payment.IdempotencyKey,
		s.Payment.CreatedAt,
	)
	if err != nil {
		var me *godrv.MySQLError
		if errors.As(err, &me) && me.Number == dupKeyErr {
			// replay: the first attempt already landed
			p, b, ferr := r.PaymentByKey(ctx, s.Payment.IdempotencyKey)
			if ferr != nil {
				return domain.SettlementOutcome{}, ferr
			}
			return domain.SettlementOutcome{Payment: p, Booking: b, Replayed: true}, nil
		}
		return domain.SettlementOutcome{}, err
	}
	paymentID, err := res.LastInsertId()
	if err != nil {
		return domain.SettlementOutcome{}, err
	}

	res, err = tx.ExecContext(ctx, insertBookingSQL,
		s.Booking.PropertyID,
		s.Booking.RoomID,
		paymentID,
		s.Booking.GuestName,
		nullStr(s.Booking.GuestEmail),
		s.Booking.GuestPhone,
		s.Booking.CheckIn,
		s.Booking.CheckOut,
		s.Booking.TotalAmount.StringFixed(0),
		string(s.Booking.PaymentStatus),
		s.Booking.PaymentRef,
		string(s.Booking.Status),
		s.Booking.CreatedAt,
	)
	if err != nil {
		return domain.SettlementOutcome{}, err
	}
	bookingID, err := res.LastInsertId()
	if err != nil {
		return domain.SettlementOutcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.SettlementOutcome{}, err
	}

	p := s.Payment
	p.ID = paymentID
	p.State = domain.SettlementCaptured
	b := s.Booking
	b.ID = bookingID
	return domain.SettlementOutcome{Payment: p, Booking: b}, nil
}

func (r *Repo) PaymentByKey(ctx context.Context, idempotencyKey string) (domain.Payment, domain.Booking, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, paymentByKeySQL, idempotencyKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.Booking{}, fmt.Errorf("%w: idempotency key", domain.ErrNotFound)
		}
		return domain.Payment{}, domain.Booking{}, err
	}

	b, err := r.bookingByPayment(ctx, p.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Payment{}, domain.Booking{}, err
	}
	// err == ErrNotFound leaves a zero booking: payment captured but the
	// booking row is still pending reconciliation.
	return p, b, nil
}

func (r *Repo) bookingByPayment(ctx context.Context, paymentID int64) (domain.Booking, error) {
	var (
		b           domain.Booking
		email       sql.NullString
		amount      []byte
		payStatus   string
		bookStatus  string
	)
	err := r.db.QueryRowContext(ctx, bookingByPaymentSQL, paymentID).Scan(
		&b.ID, &b.PropertyID, &b.RoomID, &b.GuestName, &email, &b.GuestPhone,
		&b.CheckIn, &b.CheckOut, &amount, &payStatus, &b.PaymentRef, &bookStatus, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, fmt.Errorf("%w: booking for payment %d", domain.ErrNotFound, paymentID)
	}
	if err != nil {
		return domain.Booking{}, err
	}
	b.GuestEmail = strOf(email)
	b.TotalAmount = moneyOf(amount)
	b.PaymentStatus = domain.PaymentStatus(payStatus)
	b.Status = domain.BookingStatus(bookStatus)
	return b, nil
}

// ApprovePayment performs the single false->true transition. If the row
// was already approved the stored record comes back unchanged together
// with ErrAlreadyApproved.
func (r *Repo) ApprovePayment(ctx context.Context, paymentID, approverID int64) (domain.Payment, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, approvePaymentSQL, now, approverID, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Payment{}, err
	}

	p, err := scanPayment(r.db.QueryRowContext(ctx, getPaymentSQL, paymentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, fmt.Errorf("%w: payment %d", domain.ErrNotFound, paymentID)
		}
		return domain.Payment{}, err
	}
	if affected == 0 {
		return p, domain.ErrAlreadyApproved
	}
	return p, nil
}

func (r *Repo) ListPendingPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, listPendingPaymentsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p          domain.Payment
		amount     []byte
		email      sql.NullString
		approved   bool
		approvedAt sql.NullTime
		approvedBy sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &amount, &p.Method, &p.PayerName, &email, &p.PayerPhone,
		&p.Reference, &p.ReceiptNumber, &p.IdempotencyKey,
		&approved, &approvedAt, &approvedBy, &p.CreatedAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}
	p.PayerEmail = strOf(email)
	p.Amount = moneyOf(amount)
	p.State = domain.SettlementCaptured
	if approved {
		p.State = domain.SettlementApproved
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	if approvedBy.Valid {
		v := approvedBy.Int64
		p.ApprovedBy = &v
	}
	return p, nil
}

func (r *Repo) EnqueueOutbox(ctx context.Context, e domain.OutboxEntry) error {
	_, err := r.db.ExecContext(ctx, enqueueOutboxSQL, e.Kind, e.Payload, e.NextAttemptAt)
	return err
}

func (r *Repo) DueOutbox(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, dueOutboxSQL, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OutboxEntry
	for rows.Next() {
		var e domain.OutboxEntry
		var resolved sql.NullTime
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.Attempts, &e.NextAttemptAt, &resolved, &e.CreatedAt); err != nil {
			return nil, err
		}
		if resolved.Valid {
			t := resolved.Time
			e.ResolvedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) ResolveOutbox(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, resolveOutboxSQL, id)
	return err
}

func (r *Repo) RescheduleOutbox(ctx context.Context, id int64, attempts int, next time.Time) error {
	_, err := r.db.ExecContext(ctx, rescheduleOutboxSQL, attempts, next, id)
	return err
}
