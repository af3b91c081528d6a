// ABOUTME: Booking engine holding the clinic's business rules and write workflows.
// ABOUTME: Pairs a per-slot lock table with store transactions so no slot is ever double-booked.

package clinic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/clinic-gateway/internal/store"
)

// Engine implements the clinic workflows on top of a Store. All writes that
// touch slot state go through a per-slot critical section plus a store
// transaction; reads hit the store directly and may be stale.
type Engine struct {
	store  store.Store
	locks  *lockTable
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's clock. Used by tests to book slots at
// fixed points in time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a booking engine over the given store.
func NewEngine(st store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  st,
		locks:  newLockTable(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterUserParams carries everything needed to enroll a new user with
// their first payment method and the enrollment charge.
type RegisterUserParams struct {
	SSN        int64
	FirstName  string
	LastName   string
	Address    string
	Email      string
	Phone      string
	Membership store.MembershipType
	CardLast4  int
	CardBrand  string
	CardExp    string
	CardID     string
	Amount     float64
}

// RegisterUserResult holds the ids created by RegisterUser.
type RegisterUserResult struct {
	UserID          int64 `json:"user_id"`
	PaymentMethodID int64 `json:"pay_id"`
	BillID          int64 `json:"bill_id"`
}

// RegisterUser creates a user, attaches their first payment method, and bills
// the enrollment amount against it.
func (e *Engine) RegisterUser(ctx context.Context, p RegisterUserParams) (*RegisterUserResult, error) {
	switch {
	case p.SSN <= 0:
		return nil, fmt.Errorf("%w: social_security_number is required", ErrValidation)
	case p.FirstName == "" || p.LastName == "":
		return nil, fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	case p.Email == "":
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	case !p.Membership.Valid():
		return nil, fmt.Errorf("%w: unknown membership type %q", ErrValidation, p.Membership)
	case p.Amount < 0:
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	userID, err := e.store.CreateUser(ctx, &store.User{
		SSN:        p.SSN,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Address:    p.Address,
		Email:      p.Email,
		Phone:      p.Phone,
		Membership: p.Membership,
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	payID, err := e.store.CreatePaymentMethod(ctx, &store.PaymentMethod{
		UserID:    userID,
		CardLast4: p.CardLast4,
		CardBrand: p.CardBrand,
		CardExp:   p.CardExp,
		CardID:    p.CardID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating payment method: %w", err)
	}

	var billID int64
	err = e.store.Transact(ctx, func(tx store.Tx) error {
		var txErr error
		billID, txErr = tx.InsertBill(ctx, &store.Bill{
			PaymentMethodID: payID,
			Amount:          p.Amount,
			CreatedAt:       e.now(),
		})
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("billing enrollment: %w", err)
	}

	e.logger.Info("user registered", "user_id", userID)
	return &RegisterUserResult{UserID: userID, PaymentMethodID: payID, BillID: billID}, nil
}

// AddPaymentMethod attaches another card to an existing user.
func (e *Engine) AddPaymentMethod(ctx context.Context, userID int64, cardLast4 int, cardBrand, cardExp, cardID string) (int64, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return 0, mapStoreErr(err)
	}
	payID, err := e.store.CreatePaymentMethod(ctx, &store.PaymentMethod{
		UserID:    userID,
		CardLast4: cardLast4,
		CardBrand: cardBrand,
		CardExp:   cardExp,
		CardID:    cardID,
	})
	if err != nil {
		return 0, fmt.Errorf("creating payment method: %w", err)
	}
	return payID, nil
}

// GetUser returns a user by id.
func (e *Engine) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return u, nil
}

// GetUserID resolves a user's id from their social security number.
func (e *Engine) GetUserID(ctx context.Context, ssn int64) (int64, error) {
	id, err := e.store.GetUserIDBySSN(ctx, ssn)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return id, nil
}

// ListPaymentMethods returns all payment methods belonging to a user.
func (e *Engine) ListPaymentMethods(ctx context.Context, userID int64) ([]*store.PaymentMethod, error) {
	return e.store.ListPaymentMethods(ctx, userID)
}

// ListSpecialties returns the distinct specialties with at least one doctor.
func (e *Engine) ListSpecialties(ctx context.Context) ([]string, error) {
	return e.store.ListSpecialties(ctx)
}

// SearchDoctors returns doctors matching the filter, best rated first.
func (e *Engine) SearchDoctors(ctx context.Context, filter store.DoctorFilter) ([]*store.DoctorSearchResult, error) {
	return e.store.SearchDoctors(ctx, filter)
}

// SearchAppointments returns open future slots matching the filter.
func (e *Engine) SearchAppointments(ctx context.Context, filter store.SlotFilter) ([]*store.SlotView, error) {
	if filter.Specialty == "" {
		return nil, fmt.Errorf("%w: specialty is required", ErrValidation)
	}
	if err := validateDate(filter.StartDate, "start_date"); err != nil {
		return nil, err
	}
	if err := validateDate(filter.EndDate, "end_date"); err != nil {
		return nil, err
	}
	return e.store.SearchOpenSlots(ctx, filter)
}

// GetSlot returns a single slot with its doctor details.
func (e *Engine) GetSlot(ctx context.Context, slotID int64) (*store.SlotView, error) {
	view, err := e.store.GetSlotView(ctx, slotID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return view, nil
}

// ListUserAppointments returns a user's appointments with slot details.
func (e *Engine) ListUserAppointments(ctx context.Context, userID int64) ([]*store.AppointmentView, error) {
	return e.store.ListUserAppointments(ctx, userID)
}

// ScheduleAppointment books a slot for a user and bills the visit against the
// given payment method. Exactly one of any number of concurrent attempts on
// the same slot succeeds; the rest fail with ErrSlotUnavailable.
func (e *Engine) ScheduleAppointment(ctx context.Context, userID, paymentMethodID, slotID int64, amount float64) (string, error) {
	if amount < 0 {
		return "", fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	pm, err := e.store.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: payment method %d", ErrInvalidPaymentMethod, paymentMethodID)
		}
		return "", fmt.Errorf("loading payment method: %w", err)
	}
	if pm.UserID != userID {
		return "", fmt.Errorf("%w: payment method %d does not belong to user %d", ErrInvalidPaymentMethod, paymentMethodID, userID)
	}

	slot, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	if err := e.checkNotInPast(slot); err != nil {
		return "", err
	}

	release := e.locks.acquire(slotID)
	defer release()

	apptID := uuid.New().String()
	err = e.store.Transact(ctx, func(tx store.Tx) error {
		if err := tx.SetSlotStatus(ctx, slotID, store.SlotOpen, store.SlotBooked); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, &store.Appointment{
			ID:              apptID,
			SlotID:          slotID,
			UserID:          userID,
			PaymentMethodID: paymentMethodID,
			Status:          store.AppointmentScheduled,
			CreatedAt:       e.now(),
		}); err != nil {
			return err
		}
		_, err := tx.InsertBill(ctx, &store.Bill{
			PaymentMethodID: paymentMethodID,
			SlotID:          &slotID,
			Amount:          amount,
			CreatedAt:       e.now(),
		})
		return err
	})
	if err != nil {
		return "", mapStoreErr(err)
	}

	e.logger.Info("appointment scheduled", "appointment_id", apptID, "slot_id", slotID, "user_id", userID)
	return apptID, nil
}

// CancelAppointment cancels a scheduled appointment and reopens its slot.
func (e *Engine) CancelAppointment(ctx context.Context, appointmentID string) error {
	appt, err := e.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return mapStoreErr(err)
	}
	if appt.Status.Terminal() {
		return fmt.Errorf("%w: appointment is %s", ErrAlreadyTerminal, appt.Status)
	}

	release := e.locks.acquire(appt.SlotID)
	defer release()

	err = e.store.Transact(ctx, func(tx store.Tx) error {
		// Re-read under the transaction: a concurrent cancel may have won.
		cur, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("%w: appointment is %s", ErrAlreadyTerminal, cur.Status)
		}
		if err := tx.SetAppointmentStatus(ctx, appointmentID, store.AppointmentCancelled); err != nil {
			return err
		}
		return tx.SetSlotStatus(ctx, cur.SlotID, store.SlotBooked, store.SlotOpen)
	})
	if err != nil {
		return mapStoreErr(err)
	}

	e.logger.Info("appointment cancelled", "appointment_id", appointmentID, "slot_id", appt.SlotID)
	return nil
}

// RescheduleAppointment moves an appointment to a new slot in a single
// transaction. On any failure the original appointment and both slots are
// left exactly as they were.
func (e *Engine) RescheduleAppointment(ctx context.Context, appointmentID string, newSlotID int64) (string, error) {
	appt, err := e.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	if appt.Status.Terminal() {
		return "", fmt.Errorf("%w: appointment is %s", ErrAlreadyTerminal, appt.Status)
	}
	if appt.SlotID == newSlotID {
		return "", fmt.Errorf("%w: appointment already occupies slot %d", ErrValidation, newSlotID)
	}

	newSlot, err := e.store.GetSlot(ctx, newSlotID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	if err := e.checkNotInPast(newSlot); err != nil {
		return "", err
	}

	release := e.locks.acquirePair(appt.SlotID, newSlotID)
	defer release()

	newApptID := uuid.New().String()
	err = e.store.Transact(ctx, func(tx store.Tx) error {
		cur, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("%w: appointment is %s", ErrAlreadyTerminal, cur.Status)
		}
		if err := tx.SetSlotStatus(ctx, newSlotID, store.SlotOpen, store.SlotBooked); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, &store.Appointment{
			ID:              newApptID,
			SlotID:          newSlotID,
			UserID:          cur.UserID,
			PaymentMethodID: cur.PaymentMethodID,
			Status:          store.AppointmentScheduled,
			CreatedAt:       e.now(),
		}); err != nil {
			return err
		}
		if err := tx.SetAppointmentStatus(ctx, appointmentID, store.AppointmentCancelled); err != nil {
			return err
		}
		return tx.SetSlotStatus(ctx, cur.SlotID, store.SlotBooked, store.SlotOpen)
	})
	if err != nil {
		return "", mapStoreErr(err)
	}

	e.logger.Info("appointment rescheduled",
		"appointment_id", appointmentID,
		"new_appointment_id", newApptID,
		"new_slot_id", newSlotID,
	)
	return newApptID, nil
}

// Reset drops all data and reseeds the demo doctors and slots.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	e.logger.Info("database reset")
	return nil
}

// checkNotInPast rejects booking a slot whose start time has passed.
func (e *Engine) checkNotInPast(slot *store.Slot) error {
	start, err := time.ParseInLocation("2006-01-02 15:04", slot.Date+" "+slot.StartTime, time.Local)
	if err != nil {
		return fmt.Errorf("parsing slot time: %w", err)
	}
	if start.Before(e.now()) {
		return fmt.Errorf("%w: slot %d starts %s %s", ErrInPast, slot.ID, slot.Date, slot.StartTime)
	}
	return nil
}

// validateDate enforces the YYYY-MM-DD wire format on optional date filters.
func validateDate(d, name string) error {
	if d == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrValidation, name, d)
	}
	return nil
}

// mapStoreErr translates store sentinels into domain sentinels.
func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrSlotNotOpen):
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	default:
		return err
	}
}
