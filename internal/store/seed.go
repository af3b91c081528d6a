// ABOUTME: Demo data seeding for the clinic database
// ABOUTME: Inserts doctors with weekly opening days and generates bookable slots

package store

import (
	"context"
	"fmt"
	"time"
)

// seedDoctor describes one demo doctor and their fee/rating profile.
type seedDoctor struct {
	name        string
	slotMinutes int
	visitFee    float64
	specialty   string
	rating      float64
}

var demoDoctors = []seedDoctor{
	{"Dr. Alice Green", 30, 150, "family", 4.7},
	{"Dr. Bob Taylor", 20, 100, "family", 4.5},
	{"Dr. Carol Smith", 25, 150, "family", 4.6},
	{"Dr. David Lee", 30, 200, "family", 4.8},
	{"Dr. Eva Clark", 20, 100, "family", 4.4},
	{"Dr. Fiona White", 20, 200, "pediatrics", 4.9},
	{"Dr. George Young", 30, 150, "pediatrics", 4.7},
	{"Dr. Helen King", 25, 150, "pediatrics", 4.6},
	{"Dr. Ian Black", 30, 200, "dermatology", 4.8},
	{"Dr. Julia Adams", 20, 100, "dermatology", 4.5},
}

// defaultSchedule is the weekly opening pattern every demo doctor shares.
// Weekday 0 is Monday.
var defaultSchedule = []OpeningDay{
	{Weekday: 0, StartTime: "09:00", EndTime: "13:00"},
	{Weekday: 2, StartTime: "09:00", EndTime: "13:00"},
}

// seedSlotDays is how many days ahead slots are generated on seeding.
const seedSlotDays = 30

// seedIfEmpty seeds doctors and slots only if there are no doctors yet.
// Idempotent: calling multiple times won't duplicate data.
func (s *SQLiteStore) seedIfEmpty(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&count); err != nil {
		return fmt.Errorf("counting doctors: %w", err)
	}
	if count > 0 {
		return nil
	}

	if err := s.seedDoctors(ctx); err != nil {
		return err
	}
	if err := s.generateSlots(ctx, time.Now(), seedSlotDays); err != nil {
		return err
	}
	s.logger.Info("seeded demo doctors and slots", "doctors", len(demoDoctors))
	return nil
}

func (s *SQLiteStore) seedDoctors(ctx context.Context) error {
	for _, d := range demoDoctors {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO doctors (dr_name, slot_visiting_time, visit_fee, specialty, rating)
			VALUES (?, ?, ?, ?, ?)`,
			d.name, d.slotMinutes, d.visitFee, d.specialty, d.rating)
		if err != nil {
			return fmt.Errorf("inserting doctor %q: %w", d.name, err)
		}
		drID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading doctor id: %w", err)
		}
		for _, day := range defaultSchedule {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO doctor_opening_days (dr_id, weekday, start_time, end_time)
				VALUES (?, ?, ?, ?)`,
				drID, day.Weekday, day.StartTime, day.EndTime)
			if err != nil {
				return fmt.Errorf("inserting opening day: %w", err)
			}
		}
	}
	return nil
}

// generateSlots expands each doctor's weekly opening days into concrete open
// slots of the doctor's visiting length, for daysRange days starting at from.
func (s *SQLiteStore) generateSlots(ctx context.Context, from time.Time, daysRange int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.dr_id, d.slot_visiting_time, od.weekday, od.start_time, od.end_time
		FROM doctors d
		JOIN doctor_opening_days od ON d.dr_id = od.dr_id`)
	if err != nil {
		return fmt.Errorf("querying schedule: %w", err)
	}
	defer rows.Close()

	type window struct {
		drID        int64
		slotMinutes int
		weekday     int
		start, end  string
	}
	var schedule []window
	for rows.Next() {
		var w window
		if err := rows.Scan(&w.drID, &w.slotMinutes, &w.weekday, &w.start, &w.end); err != nil {
			return fmt.Errorf("scanning schedule: %w", err)
		}
		schedule = append(schedule, w)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fromDate := from.Truncate(24 * time.Hour)
	for _, w := range schedule {
		duration := time.Duration(w.slotMinutes) * time.Minute
		for offset := 0; offset < daysRange; offset++ {
			day := fromDate.AddDate(0, 0, offset)
			if mondayBasedWeekday(day) != w.weekday {
				continue
			}

			start, err := time.Parse("2006-01-02 15:04", day.Format("2006-01-02")+" "+w.start)
			if err != nil {
				return fmt.Errorf("parsing window start: %w", err)
			}
			end, err := time.Parse("2006-01-02 15:04", day.Format("2006-01-02")+" "+w.end)
			if err != nil {
				return fmt.Errorf("parsing window end: %w", err)
			}

			for cur := start; !cur.Add(duration).After(end); cur = cur.Add(duration) {
				_, err := s.db.ExecContext(ctx, `
					INSERT INTO slots (dr_id, date, start_time, end_time, status)
					VALUES (?, ?, ?, ?, 'open')`,
					w.drID, day.Format("2006-01-02"),
					cur.Format("15:04"), cur.Add(duration).Format("15:04"))
				if err != nil {
					return fmt.Errorf("inserting slot: %w", err)
				}
			}
		}
	}
	return nil
}

// mondayBasedWeekday converts Go's Sunday-based weekday to the schedule's
// Monday-based numbering.
func mondayBasedWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
