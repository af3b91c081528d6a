// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers schema creation, seeding, searches, and transactional slot transitions

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *SQLiteStore) (userID, payID int64) {
	t.Helper()
	ctx := context.Background()

	userID, err := s.CreateUser(ctx, &User{
		SSN:        123456789,
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Address:    "12 Analytical Way",
		Email:      "ada@example.com",
		Phone:      "555-0100",
		Membership: MembershipRegular,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	payID, err = s.CreatePaymentMethod(ctx, &PaymentMethod{
		UserID:    userID,
		CardLast4: 4242,
		CardBrand: "visa",
		CardExp:   "12/30",
		CardID:    "card-test-1",
	})
	if err != nil {
		t.Fatalf("CreatePaymentMethod failed: %v", err)
	}
	return userID, payID
}

// anyOpenSlot returns a seeded open slot id.
func anyOpenSlot(t *testing.T, s *SQLiteStore) int64 {
	t.Helper()
	views, err := s.SearchOpenSlots(context.Background(), SlotFilter{Specialty: "family"})
	if err != nil {
		t.Fatalf("SearchOpenSlots failed: %v", err)
	}
	if len(views) == 0 {
		t.Fatal("seeded store has no open family slots")
	}
	return views[0].SlotID
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSeeding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	specialties, err := s.ListSpecialties(ctx)
	if err != nil {
		t.Fatalf("ListSpecialties failed: %v", err)
	}
	want := []string{"dermatology", "family", "pediatrics"}
	if len(specialties) != len(want) {
		t.Fatalf("specialties = %v, want %v", specialties, want)
	}
	for i, sp := range want {
		if specialties[i] != sp {
			t.Errorf("specialties[%d] = %q, want %q", i, specialties[i], sp)
		}
	}

	doctors, err := s.SearchDoctors(ctx, DoctorFilter{})
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	if len(doctors) != 10 {
		t.Errorf("doctor count = %d, want 10", len(doctors))
	}
}

func TestSeeding_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer s2.Close()

	doctors, err := s2.SearchDoctors(context.Background(), DoctorFilter{})
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	if len(doctors) != 10 {
		t.Errorf("doctor count after reopen = %d, want 10 (seed must not repeat)", len(doctors))
	}
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID, _ := createTestUser(t, s)

	got, err := s.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.FirstName != "Ada" || got.Membership != MembershipRegular {
		t.Errorf("GetUser = %+v, want Ada/regular", got)
	}
	if got.EnterDate == "" {
		t.Error("EnterDate was not defaulted")
	}

	id, err := s.GetUserIDBySSN(ctx, 123456789)
	if err != nil {
		t.Fatalf("GetUserIDBySSN failed: %v", err)
	}
	if id != userID {
		t.Errorf("GetUserIDBySSN = %d, want %d", id, userID)
	}

	if _, err := s.GetUser(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(absent) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetUserIDBySSN(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUserIDBySSN(absent) error = %v, want ErrNotFound", err)
	}
}

func TestCreateUser_InvalidMembership(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser(context.Background(), &User{
		SSN: 1, FirstName: "A", LastName: "B", Address: "C", Email: "d@e", Phone: "1",
		Membership: MembershipType("platinum"),
	})
	if err == nil {
		t.Fatal("CreateUser accepted an unknown membership type")
	}
}

func TestPaymentMethods(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID, payID := createTestUser(t, s)

	pm, err := s.GetPaymentMethod(ctx, payID)
	if err != nil {
		t.Fatalf("GetPaymentMethod failed: %v", err)
	}
	if pm.UserID != userID || pm.CardLast4 != 4242 {
		t.Errorf("GetPaymentMethod = %+v", pm)
	}

	list, err := s.ListPaymentMethods(ctx, userID)
	if err != nil {
		t.Fatalf("ListPaymentMethods failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("payment method count = %d, want 1", len(list))
	}
}

func TestSearchDoctors_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	minRating := 4.8
	highRated, err := s.SearchDoctors(ctx, DoctorFilter{MinRating: &minRating})
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	for _, d := range highRated {
		if d.Rating < minRating {
			t.Errorf("doctor %q rating %v below filter", d.Name, d.Rating)
		}
	}

	maxFee := 100.0
	cheap, err := s.SearchDoctors(ctx, DoctorFilter{Specialty: "family", MaxFee: &maxFee})
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	for _, d := range cheap {
		if d.VisitFee > maxFee || d.Specialty != "family" {
			t.Errorf("doctor %+v escapes filter", d)
		}
	}

	// Results ordered by rating descending.
	all, err := s.SearchDoctors(ctx, DoctorFilter{})
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Rating > all[i-1].Rating {
			t.Errorf("results not sorted by rating: %v then %v", all[i-1].Rating, all[i].Rating)
		}
	}
}

func TestSearchOpenSlots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	views, err := s.SearchOpenSlots(ctx, SlotFilter{Specialty: "family"})
	if err != nil {
		t.Fatalf("SearchOpenSlots failed: %v", err)
	}
	if len(views) == 0 {
		t.Fatal("no open family slots returned")
	}
	if len(views) > defaultSlotSearchLimit {
		t.Errorf("result count = %d exceeds default limit", len(views))
	}

	today := time.Now().Format("2006-01-02")
	for _, v := range views {
		if v.Specialty != "family" {
			t.Errorf("slot %d specialty = %q", v.SlotID, v.Specialty)
		}
		if v.Date < today {
			t.Errorf("slot %d date %q is in the past", v.SlotID, v.Date)
		}
		if v.EndTime <= v.StartTime {
			t.Errorf("slot %d window %s-%s inverted", v.SlotID, v.StartTime, v.EndTime)
		}
	}

	named, err := s.SearchOpenSlots(ctx, SlotFilter{Specialty: "family", DoctorName: "Alice"})
	if err != nil {
		t.Fatalf("SearchOpenSlots failed: %v", err)
	}
	for _, v := range named {
		if v.DoctorName != "Dr. Alice Green" {
			t.Errorf("doctor name filter leaked %q", v.DoctorName)
		}
	}
}

func TestTransact_SlotTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID, payID := createTestUser(t, s)
	slotID := anyOpenSlot(t, s)

	apptID := uuid.New().String()
	err := s.Transact(ctx, func(tx Tx) error {
		if err := tx.SetSlotStatus(ctx, slotID, SlotOpen, SlotBooked); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, &Appointment{
			ID:              apptID,
			SlotID:          slotID,
			UserID:          userID,
			PaymentMethodID: payID,
			Status:          AppointmentScheduled,
			CreatedAt:       time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}

	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if slot.Status != SlotBooked {
		t.Errorf("slot status = %q, want booked", slot.Status)
	}

	// A second open->booked transition on the same slot must fail.
	err = s.Transact(ctx, func(tx Tx) error {
		return tx.SetSlotStatus(ctx, slotID, SlotOpen, SlotBooked)
	})
	if !errors.Is(err, ErrSlotNotOpen) {
		t.Errorf("second transition error = %v, want ErrSlotNotOpen", err)
	}

	// Missing slot is reported distinctly.
	err = s.Transact(ctx, func(tx Tx) error {
		return tx.SetSlotStatus(ctx, 999999, SlotOpen, SlotBooked)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing slot error = %v, want ErrNotFound", err)
	}
}

func TestTransact_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	slotID := anyOpenSlot(t, s)

	boom := errors.New("boom")
	err := s.Transact(ctx, func(tx Tx) error {
		if err := tx.SetSlotStatus(ctx, slotID, SlotOpen, SlotBooked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transact error = %v, want boom", err)
	}

	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		t.Fatalf("GetSlot failed: %v", err)
	}
	if slot.Status != SlotOpen {
		t.Errorf("slot status after rollback = %q, want open", slot.Status)
	}
}

func TestAppointments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID, payID := createTestUser(t, s)
	slotID := anyOpenSlot(t, s)

	apptID := uuid.New().String()
	err := s.Transact(ctx, func(tx Tx) error {
		if err := tx.SetSlotStatus(ctx, slotID, SlotOpen, SlotBooked); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, &Appointment{
			ID: apptID, SlotID: slotID, UserID: userID, PaymentMethodID: payID,
			Status: AppointmentScheduled, CreatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}

	appt, err := s.GetAppointment(ctx, apptID)
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if appt.Status != AppointmentScheduled || appt.SlotID != slotID {
		t.Errorf("GetAppointment = %+v", appt)
	}

	views, err := s.ListUserAppointments(ctx, userID)
	if err != nil {
		t.Fatalf("ListUserAppointments failed: %v", err)
	}
	if len(views) != 1 || views[0].AppointmentID != apptID {
		t.Errorf("ListUserAppointments = %+v", views)
	}

	if _, err := s.GetAppointment(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAppointment(absent) error = %v, want ErrNotFound", err)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestUser(t, s)

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if _, err := s.GetUserIDBySSN(ctx, 123456789); !errors.Is(err, ErrNotFound) {
		t.Errorf("user survived reset, error = %v", err)
	}

	doctors, err := s.SearchDoctors(ctx, DoctorFilter{})
	if err != nil {
		t.Fatalf("SearchDoctors failed: %v", err)
	}
	if len(doctors) != 10 {
		t.Errorf("doctor count after reset = %d, want 10", len(doctors))
	}
}
