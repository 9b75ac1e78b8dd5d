package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

type Step string

const (
	StepProperty Step = "property"
	StepRoom     Step = "room"
	StepDates    Step = "dates"
	StepPayment  Step = "payment"
	StepSuccess  Step = "success"
)

// Session is the wizard's tagged state: the step plus only the choices
// valid at that step. Transition methods are the sole writers, and a
// backward transition clears everything downstream of where it lands,
// so no step ever acts on a stale selection from a later one.
type Session struct {
	Token    string          `json:"token"`
	Step     Step            `json:"step"`
	Property *PropertyChoice `json:"property,omitempty"`
	Room     *RoomChoice     `json:"room,omitempty"`
	Dates    *DateChoice     `json:"dates,omitempty"`
	Payment  *PaymentChoice  `json:"payment,omitempty"`
	Receipt  *Receipt        `json:"receipt,omitempty"`
}

type PropertyChoice struct {
	PropertyID int64 `json:"property_id"`
}

type RoomChoice struct {
	RoomID      int64  `json:"room_id"`
	Number      string `json:"number"`
	MonthlyRent int64  `json:"monthly_rent"`
}

type DateChoice struct {
	CheckIn  time.Time    `json:"check_in"`
	CheckOut time.Time    `json:"check_out"`
	Quote    domain.Quote `json:"quote"`
}

type PaymentChoice struct {
	Method     string `json:"method"`
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
	GuestPhone string `json:"guest_phone"`
}

// Wizard drives the booking flow: property -> room -> dates -> payment ->
// success. Sessions live in the cache so any API instance can serve any
// step; nothing is persisted to the store until settlement succeeds, so
// abandoning a session has zero side effects.
type Wizard struct {
	avail      *AvailabilityService
	settler    *SettlementService
	sessions   domain.Cache
	sessionTTL time.Duration
	clock      func() time.Time
}

func NewWizard(a *AvailabilityService, s *SettlementService, sessions domain.Cache, ttl time.Duration) *Wizard {
	return &Wizard{avail: a, settler: s, sessions: sessions, sessionTTL: ttl, clock: time.Now}
}

func sessionKey(token string) string { return "wizard:" + token }

func (w *Wizard) Start(ctx context.Context) (Session, error) {
	s := Session{Token: uuid.NewString(), Step: StepProperty}
	return s, w.save(ctx, s)
}

func (w *Wizard) Get(ctx context.Context, token string) (Session, error) {
	return w.load(ctx, token)
}

// SelectProperty moves property -> room. The property must have at least
// one available room; the room list is fetched once and cached, so later
// steps reuse it.
func (w *Wizard) SelectProperty(ctx context.Context, token string, propertyID int64) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Step != StepProperty {
		return s, stepError(s.Step, StepProperty)
	}
	views, err := w.avail.Rooms(ctx, propertyID)
	if err != nil {
		return s, err
	}
	if !anyAvailable(views) {
		return s, fmt.Errorf("%w: property %d has no available rooms", domain.ErrValidation, propertyID)
	}
	s.Property = &PropertyChoice{PropertyID: propertyID}
	s.Step = StepRoom
	return s, w.save(ctx, s)
}

// SelectRoom moves room -> dates. An occupied or maintenance room is
// rejected and the session is left untouched. On entry the dates default
// to today and one month out, and a quote is computed immediately.
func (w *Wizard) SelectRoom(ctx context.Context, token string, roomID int64) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Step != StepRoom || s.Property == nil {
		return s, stepError(s.Step, StepRoom)
	}
	views, err := w.avail.Rooms(ctx, s.Property.PropertyID)
	if err != nil {
		return s, err
	}
	view, ok := findRoom(views, roomID)
	if !ok {
		return s, fmt.Errorf("%w: room %d not in property %d", domain.ErrValidation, roomID, s.Property.PropertyID)
	}
	if view.Status != domain.StatusAvailable {
		return s, fmt.Errorf("%w: room %d is %s", domain.ErrRoomUnavailable, roomID, view.Status)
	}

	s.Room = &RoomChoice{RoomID: view.ID, Number: view.Number, MonthlyRent: view.MonthlyRent}
	s.Dates = w.defaultDates(view.MonthlyRent)
	s.Step = StepDates
	return s, w.save(ctx, s)
}

// UpdateDates re-prices on every edit while staying on the dates step.
// An inverted range is rejected; the previous dates stand.
func (w *Wizard) UpdateDates(ctx context.Context, token string, checkIn, checkOut time.Time) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Step != StepDates || s.Room == nil {
		return s, stepError(s.Step, StepDates)
	}
	if err := validDates(checkIn, checkOut); err != nil {
		return s, err
	}
	s.Dates = w.quoteDates(s.Room.MonthlyRent, checkIn, checkOut)
	return s, w.save(ctx, s)
}

// ProceedToPayment moves dates -> payment once the range is valid.
func (w *Wizard) ProceedToPayment(ctx context.Context, token string) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Step != StepDates || s.Dates == nil {
		return s, stepError(s.Step, StepDates)
	}
	if err := validDates(s.Dates.CheckIn, s.Dates.CheckOut); err != nil {
		return s, err
	}
	s.Step = StepPayment
	return s, w.save(ctx, s)
}

// SelectPayment records the method and payer contact on the payment step.
func (w *Wizard) SelectPayment(ctx context.Context, token string, choice PaymentChoice) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Step != StepPayment {
		return s, stepError(s.Step, StepPayment)
	}
	if choice.Method == "" {
		return s, fmt.Errorf("%w: payment method is required", domain.ErrValidation)
	}
	if choice.GuestPhone == "" {
		return s, fmt.Errorf("%w: contact phone is required", domain.ErrValidation)
	}
	s.Payment = &choice
	return s, w.save(ctx, s)
}

// Submit settles the assembled intent and, on success, lands on the
// terminal success step with the receipt. A retryable failure (capture
// declined, room lost to a racing session) leaves the session on the
// payment step so the guest can retry or go back.
func (w *Wizard) Submit(ctx context.Context, token string) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if s.Step != StepPayment || s.Payment == nil {
		return s, stepError(s.Step, StepPayment)
	}

	receipt, err := w.settler.Settle(ctx, Intent{
		PropertyID: s.Property.PropertyID,
		RoomID:     s.Room.RoomID,
		CheckIn:    s.Dates.CheckIn,
		CheckOut:   s.Dates.CheckOut,
		Method:     s.Payment.Method,
		GuestName:  s.Payment.GuestName,
		GuestEmail: s.Payment.GuestEmail,
		GuestPhone: s.Payment.GuestPhone,
	})
	if err != nil {
		log.Warn().Err(err).Str("token", s.Token).Msg("wizard settlement attempt failed")
		return s, err
	}

	s.Receipt = &receipt
	s.Step = StepSuccess
	return s, w.save(ctx, s)
}

// Back walks one step backwards (room->property, dates->room,
// payment->dates), clearing the selections the step being left owned.
// Success is terminal: the only way out is Reset.
func (w *Wizard) Back(ctx context.Context, token string) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	switch s.Step {
	case StepRoom:
		s.Property = nil
		s.Step = StepProperty
	case StepDates:
		s.Room = nil
		s.Dates = nil
		s.Step = StepRoom
	case StepPayment:
		s.Payment = nil
		s.Step = StepDates
	default:
		return s, fmt.Errorf("%w: cannot go back from %s", domain.ErrInvalidTransition, s.Step)
	}
	return s, w.save(ctx, s)
}

// Reset returns the session to a clean property step from any state.
func (w *Wizard) Reset(ctx context.Context, token string) (Session, error) {
	s, err := w.load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	s = Session{Token: s.Token, Step: StepProperty}
	return s, w.save(ctx, s)
}

// Close discards the session entirely.
func (w *Wizard) Close(ctx context.Context, token string) error {
	return w.sessions.Del(ctx, sessionKey(token))
}

func (w *Wizard) defaultDates(monthlyRent int64) *DateChoice {
	in := w.clock().Truncate(24 * time.Hour)
	return w.quoteDates(monthlyRent, in, in.AddDate(0, 1, 0))
}

func (w *Wizard) quoteDates(monthlyRent int64, in, out time.Time) *DateChoice {
	return &DateChoice{
		CheckIn:  in,
		CheckOut: out,
		Quote:    Quote(rentDecimal(monthlyRent), in, out),
	}
}

func (w *Wizard) load(ctx context.Context, token string) (Session, error) {
	var s Session
	ok, err := w.sessions.Get(ctx, sessionKey(token), &s)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, fmt.Errorf("%w: wizard session %s", domain.ErrNotFound, token)
	}
	return s, nil
}

func (w *Wizard) save(ctx context.Context, s Session) error {
	return w.sessions.Set(ctx, sessionKey(s.Token), s, int(w.sessionTTL.Seconds()))
}

func validDates(in, out time.Time) error {
	if in.IsZero() || out.IsZero() {
		return fmt.Errorf("%w: both dates are required", domain.ErrValidation)
	}
	if !out.After(in) {
		return fmt.Errorf("%w: check-out must be after check-in", domain.ErrValidation)
	}
	return nil
}

func stepError(current, want Step) error {
	return fmt.Errorf("%w: at %s, expected %s", domain.ErrInvalidTransition, current, want)
}

func anyAvailable(views []domain.RoomView) bool {
	for _, v := range views {
		if v.Status == domain.StatusAvailable {
			return true
		}
	}
	return false
}

func findRoom(views []domain.RoomView, id int64) (domain.RoomView, bool) {
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return domain.RoomView{}, false
}
