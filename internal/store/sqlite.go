// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides clinic persistence with automatic schema creation and seeded demo data

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist and demo doctors
// with their slots are seeded into an empty database.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas ride the DSN so every pooled connection gets them, not just
	// the one a bare Exec happens to land on. WAL keeps readers off the
	// writer's lock, the busy timeout makes a second writer wait instead of
	// failing with SQLITE_BUSY, and _txlock=immediate takes the write lock
	// at BEGIN so concurrent transactions queue rather than deadlock
	// mid-statement.
	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.seedIfEmpty(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding database: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		social_security_number INTEGER NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		address TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		enter_date TEXT NOT NULL,
		membership_type TEXT NOT NULL
			CHECK (membership_type IN ('regular', 'silver', 'gold'))
	);

	CREATE INDEX IF NOT EXISTS idx_users_ssn
		ON users(social_security_number);

	CREATE TABLE IF NOT EXISTS doctors (
		dr_id INTEGER PRIMARY KEY AUTOINCREMENT,
		dr_name TEXT NOT NULL,
		slot_visiting_time INTEGER NOT NULL,
		visit_fee REAL NOT NULL,
		specialty TEXT NOT NULL,
		rating REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS doctor_opening_days (
		dr_id INTEGER NOT NULL,
		weekday INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		FOREIGN KEY (dr_id) REFERENCES doctors(dr_id)
	);

	CREATE TABLE IF NOT EXISTS payment_methods (
		pay_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		card_last_4 INTEGER NOT NULL,
		card_brand TEXT NOT NULL,
		card_exp TEXT NOT NULL,
		card_id TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(user_id)
	);

	CREATE TABLE IF NOT EXISTS slots (
		slot_id INTEGER PRIMARY KEY AUTOINCREMENT,
		dr_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open'
			CHECK (status IN ('open', 'booked')),
		FOREIGN KEY (dr_id) REFERENCES doctors(dr_id)
	);

	CREATE INDEX IF NOT EXISTS idx_slots_doctor_date
		ON slots(dr_id, date);

	CREATE TABLE IF NOT EXISTS appointments (
		appointment_id TEXT PRIMARY KEY,
		slot_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		pay_id INTEGER NOT NULL,
		status TEXT NOT NULL
			CHECK (status IN ('scheduled', 'cancelled', 'completed')),
		created_at DATETIME NOT NULL,
		FOREIGN KEY (slot_id) REFERENCES slots(slot_id),
		FOREIGN KEY (user_id) REFERENCES users(user_id),
		FOREIGN KEY (pay_id) REFERENCES payment_methods(pay_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_slot
		ON appointments(slot_id) WHERE status = 'scheduled';

	CREATE INDEX IF NOT EXISTS idx_appointments_user
		ON appointments(user_id);

	CREATE TABLE IF NOT EXISTS bills (
		bill_id INTEGER PRIMARY KEY AUTOINCREMENT,
		pay_id INTEGER NOT NULL,
		slot_id INTEGER,
		date DATETIME NOT NULL,
		amount REAL NOT NULL,
		FOREIGN KEY (pay_id) REFERENCES payment_methods(pay_id),
		FOREIGN KEY (slot_id) REFERENCES slots(slot_id)
	);
`

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Reset drops all tables, recreates the schema, and reseeds demo data.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	drop := `
		PRAGMA foreign_keys = OFF;
		DROP TABLE IF EXISTS bills;
		DROP TABLE IF EXISTS appointments;
		DROP TABLE IF EXISTS slots;
		DROP TABLE IF EXISTS payment_methods;
		DROP TABLE IF EXISTS doctor_opening_days;
		DROP TABLE IF EXISTS doctors;
		DROP TABLE IF EXISTS users;
		PRAGMA foreign_keys = ON;
	`
	if _, err := s.db.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	if err := s.createSchema(); err != nil {
		return err
	}
	if err := s.seedIfEmpty(ctx); err != nil {
		return err
	}
	s.logger.Info("database reset complete")
	return nil
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) (int64, error) {
	if !user.Membership.Valid() {
		return 0, fmt.Errorf("invalid membership type %q", user.Membership)
	}
	if user.EnterDate == "" {
		user.EnterDate = time.Now().Format("2006-01-02")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (social_security_number, first_name, last_name, address, email, phone, enter_date, membership_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.SSN, user.FirstName, user.LastName, user.Address, user.Email, user.Phone, user.EnterDate, string(user.Membership),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading user id: %w", err)
	}
	user.ID = id
	return id, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, social_security_number, first_name, last_name, address, email, phone, enter_date, membership_type
		FROM users WHERE user_id = ?`, id)

	var u User
	var membership string
	err := row.Scan(&u.ID, &u.SSN, &u.FirstName, &u.LastName, &u.Address, &u.Email, &u.Phone, &u.EnterDate, &membership)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Membership = MembershipType(membership)
	return &u, nil
}

func (s *SQLiteStore) GetUserIDBySSN(ctx context.Context, ssn int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM users WHERE social_security_number = ?`, ssn).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("scanning user id: %w", err)
	}
	return id, nil
}

// --- Payment methods ---

func (s *SQLiteStore) CreatePaymentMethod(ctx context.Context, pm *PaymentMethod) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_methods (user_id, card_last_4, card_brand, card_exp, card_id)
		VALUES (?, ?, ?, ?, ?)`,
		pm.UserID, pm.CardLast4, pm.CardBrand, pm.CardExp, pm.CardID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting payment method: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading payment method id: %w", err)
	}
	pm.ID = id
	return id, nil
}

func (s *SQLiteStore) GetPaymentMethod(ctx context.Context, id int64) (*PaymentMethod, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pay_id, user_id, card_last_4, card_brand, card_exp, card_id
		FROM payment_methods WHERE pay_id = ?`, id)

	var pm PaymentMethod
	err := row.Scan(&pm.ID, &pm.UserID, &pm.CardLast4, &pm.CardBrand, &pm.CardExp, &pm.CardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning payment method: %w", err)
	}
	return &pm, nil
}

func (s *SQLiteStore) ListPaymentMethods(ctx context.Context, userID int64) ([]*PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pay_id, user_id, card_last_4, card_brand, card_exp, card_id
		FROM payment_methods WHERE user_id = ? ORDER BY pay_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying payment methods: %w", err)
	}
	defer rows.Close()

	var out []*PaymentMethod
	for rows.Next() {
		var pm PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.CardLast4, &pm.CardBrand, &pm.CardExp, &pm.CardID); err != nil {
			return nil, fmt.Errorf("scanning payment method: %w", err)
		}
		out = append(out, &pm)
	}
	return out, rows.Err()
}

// --- Doctors and slots ---

func (s *SQLiteStore) ListSpecialties(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT specialty FROM doctors ORDER BY specialty COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("querying specialties: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sp string
		if err := rows.Scan(&sp); err != nil {
			return nil, fmt.Errorf("scanning specialty: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchDoctors(ctx context.Context, filter DoctorFilter) ([]*DoctorSearchResult, error) {
	query := `
		SELECT
			d.dr_id,
			d.dr_name,
			d.specialty,
			d.rating,
			d.visit_fee,
			(
				SELECT MIN(sl.date || ' ' || sl.start_time)
				FROM slots sl
				WHERE sl.dr_id = d.dr_id
				  AND sl.status = 'open'
				  AND datetime(sl.date || ' ' || sl.start_time) >= datetime('now', 'localtime')
			) AS next_available
		FROM doctors d
		WHERE 1=1`
	var params []any

	if filter.Specialty != "" {
		query += " AND d.specialty = ?"
		params = append(params, filter.Specialty)
	}
	if filter.MinRating != nil {
		query += " AND d.rating >= ?"
		params = append(params, *filter.MinRating)
	}
	if filter.MaxFee != nil {
		query += " AND d.visit_fee <= ?"
		params = append(params, *filter.MaxFee)
	}
	query += " ORDER BY d.rating DESC"

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying doctors: %w", err)
	}
	defer rows.Close()

	var out []*DoctorSearchResult
	for rows.Next() {
		var d DoctorSearchResult
		var next sql.NullString
		if err := rows.Scan(&d.DoctorID, &d.Name, &d.Specialty, &d.Rating, &d.VisitFee, &next); err != nil {
			return nil, fmt.Errorf("scanning doctor: %w", err)
		}
		if next.Valid {
			d.NextAvailable = next.String
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// defaultSlotSearchLimit caps search_available_appointments result size.
const defaultSlotSearchLimit = 10

func (s *SQLiteStore) SearchOpenSlots(ctx context.Context, filter SlotFilter) ([]*SlotView, error) {
	query := slotViewSelect + `
		WHERE d.specialty = ?
		  AND sl.status = 'open'
		  AND date(sl.date) >= date('now', 'localtime')`
	params := []any{filter.Specialty}

	if filter.DoctorName != "" {
		query += " AND d.dr_name LIKE ?"
		params = append(params, "%"+filter.DoctorName+"%")
	}
	if filter.StartDate != "" {
		query += " AND date(sl.date) >= date(?)"
		params = append(params, filter.StartDate)
	}
	if filter.EndDate != "" {
		query += " AND date(sl.date) <= date(?)"
		params = append(params, filter.EndDate)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSlotSearchLimit
	}
	query += " ORDER BY sl.date ASC, sl.start_time ASC LIMIT ?"
	params = append(params, limit)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying open slots: %w", err)
	}
	defer rows.Close()

	var out []*SlotView
	for rows.Next() {
		v, err := scanSlotView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// slotViewSelect is the shared slot+doctor projection for search results.
const slotViewSelect = `
	SELECT
		sl.slot_id,
		d.dr_name,
		d.specialty,
		sl.date,
		sl.start_time,
		sl.end_time,
		d.visit_fee,
		d.rating
	FROM slots sl
	JOIN doctors d ON sl.dr_id = d.dr_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlotView(row rowScanner) (*SlotView, error) {
	var v SlotView
	if err := row.Scan(&v.SlotID, &v.DoctorName, &v.Specialty, &v.Date, &v.StartTime, &v.EndTime, &v.VisitFee, &v.Rating); err != nil {
		return nil, fmt.Errorf("scanning slot view: %w", err)
	}
	return &v, nil
}

func (s *SQLiteStore) GetSlot(ctx context.Context, slotID int64) (*Slot, error) {
	return getSlot(ctx, s.db, slotID)
}

func (s *SQLiteStore) GetSlotView(ctx context.Context, slotID int64) (*SlotView, error) {
	row := s.db.QueryRowContext(ctx, slotViewSelect+" WHERE sl.slot_id = ?", slotID)
	v, err := scanSlotView(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// querier abstracts *sql.DB and *sql.Tx for shared read helpers.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSlot(ctx context.Context, q querier, slotID int64) (*Slot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT slot_id, dr_id, date, start_time, end_time, status
		FROM slots WHERE slot_id = ?`, slotID)

	var sl Slot
	var status string
	err := row.Scan(&sl.ID, &sl.DoctorID, &sl.Date, &sl.StartTime, &sl.EndTime, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning slot: %w", err)
	}
	sl.Status = SlotStatus(status)
	return &sl, nil
}

// --- Appointments ---

func (s *SQLiteStore) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return getAppointment(ctx, s.db, id)
}

func getAppointment(ctx context.Context, q querier, id string) (*Appointment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT appointment_id, slot_id, user_id, pay_id, status, created_at
		FROM appointments WHERE appointment_id = ?`, id)

	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.SlotID, &a.UserID, &a.PaymentMethodID, &status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning appointment: %w", err)
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (s *SQLiteStore) ListUserAppointments(ctx context.Context, userID int64) ([]*AppointmentView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			a.appointment_id,
			a.status,
			sl.slot_id,
			d.dr_name,
			d.specialty,
			sl.date,
			sl.start_time,
			sl.end_time,
			d.visit_fee,
			d.rating
		FROM appointments a
		JOIN slots sl ON a.slot_id = sl.slot_id
		JOIN doctors d ON sl.dr_id = d.dr_id
		WHERE a.user_id = ?
		ORDER BY sl.date ASC, sl.start_time ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user appointments: %w", err)
	}
	defer rows.Close()

	var out []*AppointmentView
	for rows.Next() {
		var v AppointmentView
		var status string
		err := rows.Scan(&v.AppointmentID, &status,
			&v.Slot.SlotID, &v.Slot.DoctorName, &v.Slot.Specialty,
			&v.Slot.Date, &v.Slot.StartTime, &v.Slot.EndTime,
			&v.Slot.VisitFee, &v.Slot.Rating)
		if err != nil {
			return nil, fmt.Errorf("scanning appointment view: %w", err)
		}
		v.Status = AppointmentStatus(status)
		out = append(out, &v)
	}
	return out, rows.Err()
}

// --- Transactions ---

// sqliteTx implements Tx over a live *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetSlot(ctx context.Context, slotID int64) (*Slot, error) {
	return getSlot(ctx, t.tx, slotID)
}

func (t *sqliteTx) SetSlotStatus(ctx context.Context, slotID int64, from, to SlotStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE slots SET status = ? WHERE slot_id = ? AND status = ?`,
		string(to), slotID, string(from))
	if err != nil {
		return fmt.Errorf("updating slot status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing slot from a failed precondition.
	if _, err := getSlot(ctx, t.tx, slotID); err != nil {
		return err
	}
	return ErrSlotNotOpen
}

func (t *sqliteTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO appointments (appointment_id, slot_id, user_id, pay_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		appt.ID, appt.SlotID, appt.UserID, appt.PaymentMethodID, string(appt.Status), appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t *sqliteTx) SetAppointmentStatus(ctx context.Context, id string, status AppointmentStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE appointments SET status = ? WHERE appointment_id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("updating appointment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) InsertBill(ctx context.Context, bill *Bill) (int64, error) {
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO bills (pay_id, slot_id, date, amount)
		VALUES (?, ?, ?, ?)`,
		bill.PaymentMethodID, bill.SlotID, bill.CreatedAt, bill.Amount)
	if err != nil {
		return 0, fmt.Errorf("inserting bill: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading bill id: %w", err)
	}
	bill.ID = id
	return id, nil
}

// Transact runs fn inside a single immediate write transaction. The write
// lock is taken at BEGIN, so concurrent transactions on independent rows
// queue behind the busy timeout instead of failing; a committed transition
// is visible to every later transaction.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
