package mysql

const listPropertiesSQL = `
SELECT id, name, address, city
FROM properties
WHERE published = 1 AND deleted_at IS NULL
ORDER BY id
`

// Rooms come back with their active leases in one pass; status is derived
// by the caller, never read from a column.
const listRoomsSQL = `
SELECT
  r.id, r.property_id, r.room_number, r.floor_no, r.monthly_rent, r.maintenance,
  l.id, l.tenant_id, l.move_in_date, l.move_out_date, l.is_active
FROM rooms r
LEFT JOIN leases l
  ON l.room_id = r.id AND l.is_active = 1
WHERE r.property_id = ?
ORDER BY r.id, l.id
`

const getRoomSQL = `
SELECT
  r.id, r.property_id, r.room_number, r.floor_no, r.monthly_rent, r.maintenance,
  l.id, l.tenant_id, l.move_in_date, l.move_out_date, l.is_active
FROM rooms r
LEFT JOIN leases l
  ON l.room_id = r.id AND l.is_active = 1
WHERE r.id = ?
ORDER BY l.id
`

// Serializes racing settlements on the same room.
const lockRoomSQL = `SELECT id FROM rooms WHERE id = ? FOR UPDATE`

// Half-open [check_in, check_out) overlap against confirmed bookings.
const overlapCountSQL = `
SELECT COUNT(*)
FROM bookings
WHERE room_id = ?
  AND status = 'confirmed'
  AND check_in_date < ?
  AND check_out_date > ?
`

const insertPaymentSQL = `
INSERT INTO payments
  (amount, method, payer_name, payer_email, payer_phone,
   reference, receipt_number, idempotency_key, admin_approved, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
`

const insertBookingSQL = `
INSERT INTO bookings
  (property_id, room_id, payment_id, guest_name, guest_email, guest_phone,
   check_in_date, check_out_date, total_amount, payment_status, payment_reference,
   status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const paymentColumns = `
  p.id, p.amount, p.method, p.payer_name, p.payer_email, p.payer_phone,
  p.reference, p.receipt_number, p.idempotency_key,
  p.admin_approved, p.admin_approved_at, p.admin_approved_by, p.created_at
`

const paymentByKeySQL = `
SELECT` + paymentColumns + `
FROM payments p
WHERE p.idempotency_key = ?
`

const bookingByPaymentSQL = `
SELECT
  b.id, b.property_id, b.room_id, b.guest_name, b.guest_email, b.guest_phone,
  b.check_in_date, b.check_out_date, b.total_amount, b.payment_status,
  b.payment_reference, b.status, b.created_at
FROM bookings b
WHERE b.payment_id = ?
`

// The approval transition runs at most once; the WHERE clause makes a
// replay affect zero rows.
const approvePaymentSQL = `
UPDATE payments
SET admin_approved = 1, admin_approved_at = ?, admin_approved_by = ?
WHERE id = ? AND admin_approved = 0
`

const getPaymentSQL = `
SELECT` + paymentColumns + `
FROM payments p
WHERE p.id = ?
`

const listPendingPaymentsSQL = `
SELECT` + paymentColumns + `
FROM payments p
WHERE p.admin_approved = 0
ORDER BY p.created_at, p.id
`

const enqueueOutboxSQL = `
INSERT INTO settlement_outbox (kind, payload, attempts, next_attempt_at)
VALUES (?, ?, 0, ?)
`

const dueOutboxSQL = `
SELECT id, kind, payload, attempts, next_attempt_at, resolved_at, created_at
FROM settlement_outbox
WHERE resolved_at IS NULL AND next_attempt_at <= ?
ORDER BY next_attempt_at, id
LIMIT ?
`

const resolveOutboxSQL = `
UPDATE settlement_outbox SET resolved_at = CURRENT_TIMESTAMP WHERE id = ? AND resolved_at IS NULL
`

const rescheduleOutboxSQL = `
UPDATE settlement_outbox SET attempts = ?, next_attempt_at = ? WHERE id = ? AND resolved_at IS NULL
`
