//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
	mysqlrepo "github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/storage/mysql"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=afriestate",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/afriestate?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC", hostPort)

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func seedRooms(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO properties (id, name, address, city, published) VALUES
		   (1, 'Kacyiru Heights', 'KG 7 Ave 12', 'Kigali', 1)`,
		`INSERT INTO rooms (id, property_id, room_number, floor_no, monthly_rent) VALUES
		   (10, 1, 'A1', 1, 100000),
		   (11, 1, 'A2', 1, 80000)`,
		`INSERT INTO leases (id, room_id, tenant_id, move_in_date, move_out_date, is_active) VALUES
		   (1, 11, 5, '2025-01-01', NULL, 1)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func sampleSettlement(key string, in, out time.Time) domain.Settlement {
	created := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	return domain.Settlement{
		Payment: domain.Payment{
			Amount:         decimal.NewFromInt(100_000),
			Method:         "momo",
			PayerName:      "Aline U.",
			PayerPhone:     "+250788123456",
			Reference:      "GW-1",
			ReceiptNumber:  "RCPT-20250601-abcd1234",
			IdempotencyKey: key,
			CreatedAt:      created,
		},
		Booking: domain.Booking{
			PropertyID:    1,
			RoomID:        10,
			GuestName:     "Aline U.",
			GuestPhone:    "+250788123456",
			CheckIn:       in,
			CheckOut:      out,
			TotalAmount:   decimal.NewFromInt(100_000),
			PaymentStatus: domain.PaymentPaid,
			PaymentRef:    "GW-1",
			Status:        domain.BookingConfirmed,
			CreatedAt:     created,
		},
	}
}

func TestRepo_MySQL_Settlement(t *testing.T) {
	db := startMySQL(t)
	seedRooms(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	// rooms come back with their leases folded in
	rooms, err := repo.ListRoomsForProperty(ctx, 1)
	if err != nil {
		t.Fatalf("ListRoomsForProperty: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("rooms: %+v", rooms)
	}
	for _, r := range rooms {
		if r.ID == 11 && len(r.Leases) != 1 {
			t.Fatalf("room 11 must carry its lease: %+v", r)
		}
		if r.ID == 10 && len(r.Leases) != 0 {
			t.Fatalf("room 10 must be lease-free: %+v", r)
		}
	}

	in := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	out := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	first, err := repo.CreateSettlement(ctx, sampleSettlement("settle-k1", in, out))
	if err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}
	if first.Replayed || first.Payment.ID == 0 || first.Booking.ID == 0 {
		t.Fatalf("first settlement: %+v", first)
	}
	if first.Payment.State != domain.SettlementCaptured {
		t.Fatalf("state: %s", first.Payment.State)
	}

	// same key again: no new rows, the stored pair comes back
	replay, err := repo.CreateSettlement(ctx, sampleSettlement("settle-k1", in, out))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Payment.ID != first.Payment.ID || replay.Booking.ID != first.Booking.ID {
		t.Fatalf("replay outcome: %+v", replay)
	}

	// overlapping range on the same room is rejected
	overlapIn := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	overlapOut := time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC)
	_, err = repo.CreateSettlement(ctx, sampleSettlement("settle-k2", overlapIn, overlapOut))
	if !errors.Is(err, domain.ErrRoomUnavailable) {
		t.Fatalf("overlap: want ErrRoomUnavailable, got %v", err)
	}

	// back-to-back is fine: check-out day equals the next check-in
	next, err := repo.CreateSettlement(ctx, sampleSettlement("settle-k3", out, out.AddDate(0, 1, 0)))
	if err != nil {
		t.Fatalf("back-to-back: %v", err)
	}
	if next.Replayed {
		t.Fatalf("back-to-back must be a fresh settlement")
	}

	p, b, err := repo.PaymentByKey(ctx, "settle-k1")
	if err != nil {
		t.Fatalf("PaymentByKey: %v", err)
	}
	if p.ID != first.Payment.ID || b.ID != first.Booking.ID {
		t.Fatalf("lookup mismatch: %+v %+v", p, b)
	}
	if p.Amount.String() != "100000" {
		t.Fatalf("amount round-trip: %s", p.Amount)
	}
}

func TestRepo_MySQL_Approval(t *testing.T) {
	db := startMySQL(t)
	seedRooms(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	in := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	created, err := repo.CreateSettlement(ctx, sampleSettlement("settle-appr", in, in.AddDate(0, 1, 0)))
	if err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}

	pending, err := repo.ListPendingPayments(ctx)
	if err != nil {
		t.Fatalf("ListPendingPayments: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != created.Payment.ID {
		t.Fatalf("pending: %+v", pending)
	}

	p, err := repo.ApprovePayment(ctx, created.Payment.ID, 42)
	if err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if p.State != domain.SettlementApproved || p.ApprovedBy == nil || *p.ApprovedBy != 42 || p.ApprovedAt == nil {
		t.Fatalf("approval stamp: %+v", p)
	}
	stamp := *p.ApprovedAt

	again, err := repo.ApprovePayment(ctx, created.Payment.ID, 99)
	if !errors.Is(err, domain.ErrAlreadyApproved) {
		t.Fatalf("second approve: want ErrAlreadyApproved, got %v", err)
	}
	if again.ApprovedBy == nil || *again.ApprovedBy != 42 {
		t.Fatalf("approver changed on replay: %+v", again)
	}
	if again.ApprovedAt == nil || !again.ApprovedAt.Equal(stamp) {
		t.Fatalf("stamp changed on replay: %v vs %v", again.ApprovedAt, stamp)
	}

	pending, err = repo.ListPendingPayments(ctx)
	if err != nil {
		t.Fatalf("ListPendingPayments: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("approved payment still pending: %+v", pending)
	}
}

func TestRepo_MySQL_Outbox(t *testing.T) {
	db := startMySQL(t)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	err := repo.EnqueueOutbox(ctx, domain.OutboxEntry{
		Kind:          domain.OutboxSettlementReplay,
		Payload:       []byte(`{"idempotency_key":"settle-k1"}`),
		NextAttemptAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("EnqueueOutbox: %v", err)
	}
	err = repo.EnqueueOutbox(ctx, domain.OutboxEntry{
		Kind:          domain.OutboxOrphanCapture,
		Payload:       []byte(`{"reference":"GW-9"}`),
		NextAttemptAt: now.Add(time.Hour), // not yet due
	})
	if err != nil {
		t.Fatalf("EnqueueOutbox: %v", err)
	}

	due, err := repo.DueOutbox(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueOutbox: %v", err)
	}
	if len(due) != 1 || due[0].Kind != domain.OutboxSettlementReplay {
		t.Fatalf("due: %+v", due)
	}

	id := due[0].ID
	if err := repo.RescheduleOutbox(ctx, id, 1, now.Add(time.Hour)); err != nil {
		t.Fatalf("RescheduleOutbox: %v", err)
	}
	due, err = repo.DueOutbox(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueOutbox: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("rescheduled entry still due: %+v", due)
	}

	if err := repo.ResolveOutbox(ctx, id); err != nil {
		t.Fatalf("ResolveOutbox: %v", err)
	}
	due, err = repo.DueOutbox(ctx, now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("DueOutbox: %v", err)
	}
	for _, e := range due {
		if e.ID == id {
			t.Fatalf("resolved entry came back: %+v", e)
		}
	}
}
