// ABOUTME: Store interface and data types for clinic-gateway persistence
// ABOUTME: Defines User, Doctor, Slot, Appointment structs and the transactional Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrSlotNotOpen is returned by a conditional slot transition whose
// precondition status did not hold (the slot exists but is not in the
// expected state).
var ErrSlotNotOpen = errors.New("slot not in expected status")

// MembershipType enumerates user membership tiers
type MembershipType string

const (
	MembershipRegular MembershipType = "regular"
	MembershipSilver  MembershipType = "silver"
	MembershipGold    MembershipType = "gold"
)

// Valid reports whether the membership type is one of the known tiers.
func (m MembershipType) Valid() bool {
	switch m {
	case MembershipRegular, MembershipSilver, MembershipGold:
		return true
	}
	return false
}

// SlotStatus enumerates bookable slot states
type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotBooked SlotStatus = "booked"
)

// AppointmentStatus enumerates appointment lifecycle states.
// Cancelled and completed are terminal.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Terminal reports whether the status admits no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCancelled || s == AppointmentCompleted
}

// User represents a registered clinic patient
type User struct {
	ID         int64
	SSN        int64
	FirstName  string
	LastName   string
	Address    string
	Email      string
	Phone      string
	EnterDate  string // YYYY-MM-DD
	Membership MembershipType
}

// PaymentMethod represents a stored card reference belonging to a user
type PaymentMethod struct {
	ID        int64
	UserID    int64
	CardLast4 int
	CardBrand string
	CardExp   string // MM/YY
	CardID    string
}

// Doctor represents a clinic doctor
type Doctor struct {
	ID          int64
	Name        string
	Specialty   string
	SlotMinutes int
	VisitFee    float64
	Rating      float64
}

// OpeningDay is a weekly recurring window during which a doctor sees patients.
// Weekday follows 0 = Monday through 6 = Sunday.
type OpeningDay struct {
	DoctorID  int64
	Weekday   int
	StartTime string // "09:00"
	EndTime   string // "17:00"
}

// Slot is a bookable time window for a specific doctor
type Slot struct {
	ID        int64
	DoctorID  int64
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM
	EndTime   string // HH:MM
	Status    SlotStatus
}

// Appointment links a user and payment method to a booked slot
type Appointment struct {
	ID              string
	SlotID          int64
	UserID          int64
	PaymentMethodID int64
	Status          AppointmentStatus
	CreatedAt       time.Time
}

// Bill records a charge against a payment method, optionally tied to a slot
type Bill struct {
	ID              int64
	PaymentMethodID int64
	SlotID          *int64
	Amount          float64
	CreatedAt       time.Time
}

// SlotView is a slot joined with its doctor's details, as returned by searches
type SlotView struct {
	SlotID     int64   `json:"slot_id"`
	DoctorName string  `json:"doctor_name"`
	Specialty  string  `json:"specialty"`
	Date       string  `json:"date"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	VisitFee   float64 `json:"visit_fee"`
	Rating     float64 `json:"rating"`
}

// AppointmentView is an appointment joined with its slot and doctor details
type AppointmentView struct {
	AppointmentID string            `json:"appointment_id"`
	Status        AppointmentStatus `json:"status"`
	Slot          SlotView          `json:"slot"`
}

// DoctorSearchResult is a doctor with their next open slot, if any
type DoctorSearchResult struct {
	DoctorID      int64   `json:"doctor_id"`
	Name          string  `json:"name"`
	Specialty     string  `json:"specialty"`
	Rating        float64 `json:"rating"`
	VisitFee      float64 `json:"visit_fee"`
	NextAvailable string  `json:"next_available,omitempty"` // "YYYY-MM-DD HH:MM", empty when fully booked
}

// DoctorFilter narrows SearchDoctors results. Zero values mean no constraint.
type DoctorFilter struct {
	Specialty string
	MinRating *float64
	MaxFee    *float64
}

// SlotFilter narrows SearchOpenSlots results. Specialty is required; the rest
// are optional. Only future-dated open slots are returned, at most Limit rows
// (a zero Limit applies the default of 10).
type SlotFilter struct {
	Specialty  string
	DoctorName string
	StartDate  string
	EndDate    string
	Limit      int
}

// Tx is the transactional view the booking engine composes its state
// transitions through. All methods act inside the surrounding Transact call;
// an error aborts and rolls back the whole transaction.
type Tx interface {
	GetSlot(ctx context.Context, slotID int64) (*Slot, error)
	// SetSlotStatus transitions a slot from one status to another. Returns
	// ErrNotFound if the slot does not exist, ErrSlotNotOpen if it exists but
	// is not in the from status.
	SetSlotStatus(ctx context.Context, slotID int64, from, to SlotStatus) error
	InsertAppointment(ctx context.Context, appt *Appointment) error
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	SetAppointmentStatus(ctx context.Context, id string, status AppointmentStatus) error
	InsertBill(ctx context.Context, bill *Bill) (int64, error)
}

// Store defines the interface for clinic persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) (int64, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserIDBySSN(ctx context.Context, ssn int64) (int64, error)

	// Payment methods
	CreatePaymentMethod(ctx context.Context, pm *PaymentMethod) (int64, error)
	GetPaymentMethod(ctx context.Context, id int64) (*PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID int64) ([]*PaymentMethod, error)

	// Doctors and slots (read side; stale reads are acceptable)
	ListSpecialties(ctx context.Context) ([]string, error)
	SearchDoctors(ctx context.Context, filter DoctorFilter) ([]*DoctorSearchResult, error)
	SearchOpenSlots(ctx context.Context, filter SlotFilter) ([]*SlotView, error)
	GetSlot(ctx context.Context, slotID int64) (*Slot, error)
	GetSlotView(ctx context.Context, slotID int64) (*SlotView, error)

	// Appointments (read side)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	ListUserAppointments(ctx context.Context, userID int64) ([]*AppointmentView, error)

	// Transact runs fn inside a single write transaction; fn's error aborts
	// and rolls back. Slot status transitions only happen through this path.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	// Reset drops and recreates the schema, then reseeds demo data
	Reset(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
