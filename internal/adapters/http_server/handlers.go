package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/app"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

type Handlers struct {
	Availability *app.AvailabilityService
	Wizard       *app.Wizard
	Settlement   *app.SettlementService
	Approval     *app.ApprovalService
}

type problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/properties", h.listProperties)
	s.mux.Get("/v1/properties/{id}/rooms", h.listRooms)
	s.mux.Post("/v1/quotes", h.quote)

	s.mux.Post("/v1/wizard", h.startWizard)
	s.mux.Get("/v1/wizard/{token}", h.getWizard)
	s.mux.Post("/v1/wizard/{token}/property", h.wizardProperty)
	s.mux.Post("/v1/wizard/{token}/room", h.wizardRoom)
	s.mux.Put("/v1/wizard/{token}/dates", h.wizardDates)
	s.mux.Post("/v1/wizard/{token}/proceed", h.wizardProceed)
	s.mux.Post("/v1/wizard/{token}/payment", h.wizardPayment)
	s.mux.Post("/v1/wizard/{token}/submit", h.wizardSubmit)
	s.mux.Post("/v1/wizard/{token}/back", h.wizardBack)
	s.mux.Post("/v1/wizard/{token}/reset", h.wizardReset)
	s.mux.Delete("/v1/wizard/{token}", h.closeWizard)

	s.mux.Post("/v1/bookings", h.createBooking)

	s.mux.Get("/v1/admin/payments/pending", h.pendingPayments)
	s.mux.Post("/v1/admin/payments/{id}/approve", h.approvePayment)
	s.mux.Post("/v1/admin/properties/{id}/refresh", h.refreshRooms)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string, retryable bool) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Retryable: retryable}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the domain's error taxonomy onto HTTP. Validation and
// transition errors are the caller's to fix; unavailability and capture
// failures are retryable; anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), false)
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Validation Failed", err.Error(), false)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "Invalid Transition", err.Error(), false)
	case errors.Is(err, domain.ErrRoomUnavailable):
		writeProblem(w, http.StatusConflict, "Room Unavailable", err.Error(), true)
	case errors.Is(err, domain.ErrPaymentCapture):
		writeProblem(w, http.StatusPaymentRequired, "Payment Failed", err.Error(), true)
	case errors.Is(err, domain.ErrAlreadyApproved):
		writeProblem(w, http.StatusConflict, "Already Approved", err.Error(), false)
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "", false)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON", false)
		return false
	}
	return true
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// ---- catalogue ----

func (h *Handlers) listProperties(w http.ResponseWriter, r *http.Request) {
	out, err := h.Availability.Properties(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number", false)
		return
	}
	out, err := h.Availability.Rooms(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) quote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   int64  `json:"room_id"`
		CheckIn  string `json:"check_in"`
		CheckOut string `json:"check_out"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := h.Settlement.QuoteRoom(r.Context(), req.RoomID, parseDateOrZero(req.CheckIn), parseDateOrZero(req.CheckOut))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Bad date strings become zero times; the pricing engine's one-month
// fallback keeps the preview endpoint infallible past room lookup.
func parseDateOrZero(s string) time.Time {
	t, err := parseDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---- wizard ----

func (h *Handlers) startWizard(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wizard.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handlers) getWizard(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wizard.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID int64 `json:"property_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Wizard.SelectProperty(r.Context(), chi.URLParam(r, "token"), req.PropertyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID int64 `json:"room_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Wizard.SelectRoom(r.Context(), chi.URLParam(r, "token"), req.RoomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardDates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CheckIn  string `json:"check_in"`
		CheckOut string `json:"check_out"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := parseDate(req.CheckIn)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_in must be YYYY-MM-DD", false)
		return
	}
	out, err := parseDate(req.CheckOut)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_out must be YYYY-MM-DD", false)
		return
	}
	s, err := h.Wizard.UpdateDates(r.Context(), chi.URLParam(r, "token"), in, out)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardProceed(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wizard.ProceedToPayment(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardPayment(w http.ResponseWriter, r *http.Request) {
	var req app.PaymentChoice
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Wizard.SelectPayment(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardSubmit(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wizard.Submit(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardBack(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wizard.Back(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) wizardReset(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wizard.Reset(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) closeWizard(w http.ResponseWriter, r *http.Request) {
	if err := h.Wizard.Close(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- direct settlement ----

// createBooking is the non-wizard settlement surface for API clients.
// An Idempotency-Key header makes client retries safe; without one a key
// is derived from the intent itself.
func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID int64  `json:"property_id"`
		RoomID     int64  `json:"room_id"`
		CheckIn    string `json:"check_in"`
		CheckOut   string `json:"check_out"`
		Method     string `json:"method"`
		GuestName  string `json:"guest_name"`
		GuestEmail string `json:"guest_email"`
		GuestPhone string `json:"guest_phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := parseDate(req.CheckIn)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_in must be YYYY-MM-DD", false)
		return
	}
	out, err := parseDate(req.CheckOut)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_out must be YYYY-MM-DD", false)
		return
	}

	receipt, err := h.Settlement.Settle(r.Context(), app.Intent{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		PropertyID:     req.PropertyID,
		RoomID:         req.RoomID,
		CheckIn:        in,
		CheckOut:       out,
		Method:         req.Method,
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		GuestPhone:     req.GuestPhone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ---- admin ----

func (h *Handlers) pendingPayments(w http.ResponseWriter, r *http.Request) {
	out, err := h.Approval.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) approvePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number", false)
		return
	}
	var req struct {
		ApproverID int64 `json:"approver_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ApproverID <= 0 {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "approver_id is required", false)
		return
	}
	p, err := h.Approval.Approve(r.Context(), id, req.ApproverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// refreshRooms drops a property's cached room list after out-of-band
// lease changes, so the next read re-derives from the store.
func (h *Handlers) refreshRooms(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number", false)
		return
	}
	h.Availability.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}
