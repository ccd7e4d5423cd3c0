package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/coach-onboarding/internal/db"
)

type PgRepository struct {
	pool db.Pool
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	calendarColumns = `id, name, meeting_link, timezone, is_active, created_at, updated_at`
	slotColumns     = `id, calendar_id, day_of_week, start_minute, end_minute, max_bookings, is_active, specific_date, timezone, created_at, updated_at`
	bookingColumns  = `id, calendar_id, slot_id, booking_date, start_minute, end_minute, status, booker_name, booker_email, booker_phone, prospect_id, created_at, updated_at`
)

// Helpers

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(&c.ID, &c.Name, &c.MeetingLink, &c.Timezone, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanSlot(row pgx.Row) (*CalendarSlot, error) {
	var (
		s            CalendarSlot
		day          int
		start, end   int
		specificDate *time.Time
	)
	err := row.Scan(
		&s.ID,
		&s.CalendarID,
		&day,
		&start,
		&end,
		&s.MaxBookings,
		&s.IsActive,
		&specificDate,
		&s.Timezone,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.DayOfWeek = time.Weekday(day)
	s.StartTime = fromMinutes(start)
	s.EndTime = fromMinutes(end)
	if specificDate != nil {
		d := civil.DateOf(*specificDate)
		s.SpecificDate = &d
	}
	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b          Booking
		date       time.Time
		start, end int
	)
	err := row.Scan(
		&b.ID,
		&b.CalendarID,
		&b.SlotID,
		&date,
		&start,
		&end,
		&b.Status,
		&b.Booker.Name,
		&b.Booker.Email,
		&b.Booker.Phone,
		&b.ProspectID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.BookingDate = civil.DateOf(date)
	b.StartTime = fromMinutes(start)
	b.EndTime = fromMinutes(end)
	return &b, nil
}

func fromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

func dateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func nullableDate(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := dateArg(*d)
	return &t
}

// Interface methods

func (r *PgRepository) CreateCalendar(ctx context.Context, cal Calendar) (*Calendar, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO calendars (id, name, meeting_link, timezone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+calendarColumns,
		cal.ID, cal.Name, cal.MeetingLink, cal.Timezone, cal.IsActive)
	c, err := scanCalendar(row)
	if err != nil {
		return nil, fmt.Errorf("insert calendar: %w", err)
	}
	return c, nil
}

func (r *PgRepository) GetCalendar(ctx context.Context, id uuid.UUID) (*Calendar, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = $1`, id)
	return scanCalendar(row)
}

func (r *PgRepository) CreateSlot(ctx context.Context, slot CalendarSlot) (*CalendarSlot, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO calendar_slots (id, calendar_id, day_of_week, start_minute, end_minute, max_bookings,
		                            is_active, specific_date, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+slotColumns,
		slot.ID, slot.CalendarID, int(slot.DayOfWeek), slot.StartTime.Minutes(), slot.EndTime.Minutes(),
		slot.MaxBookings, slot.IsActive, nullableDate(slot.SpecificDate), slot.Timezone)
	s, err := scanSlot(row)
	if err != nil {
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return s, nil
}

func (r *PgRepository) ListSlots(ctx context.Context, calendarID uuid.UUID) ([]CalendarSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM calendar_slots
		WHERE calendar_id = $1
		ORDER BY day_of_week, start_minute
	`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CalendarSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*CalendarSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE calendar_slots
		SET is_active = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns, id, active)
	return scanSlot(row)
}

func (r *PgRepository) CountActiveBookings(ctx context.Context, calendarID uuid.UUID, from, to civil.Date) (map[WindowKey]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_date, start_minute, end_minute, COUNT(*)
		FROM bookings
		WHERE calendar_id = $1
		  AND booking_date BETWEEN $2 AND $3
		  AND status <> 'CANCELLED'
		GROUP BY booking_date, start_minute, end_minute
	`, calendarID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[WindowKey]int)
	for rows.Next() {
		var (
			date       time.Time
			start, end int
			count      int
		)
		if err := rows.Scan(&date, &start, &end, &count); err != nil {
			return nil, err
		}
		result[WindowKey{Date: civil.DateOf(date), Start: fromMinutes(start), End: fromMinutes(end)}] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Reserve(ctx context.Context, slotID uuid.UUID, date civil.Date, decide func(ReserveState) (Booking, error)) (*Booking, error) {
	var created *Booking

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM calendar_slots WHERE id = $1`, slotID))
		if err != nil {
			return err
		}

		// Locking the calendar row serialises every reservation against it, so the
		// count below cannot go stale before the insert.
		cal, err := scanCalendar(tx.QueryRow(ctx, `
			SELECT `+calendarColumns+` FROM calendars WHERE id = $1 FOR UPDATE
		`, slot.CalendarID))
		if err != nil {
			return err
		}

		state := ReserveState{Slot: *slot, Calendar: *cal}

		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM calendar_slots
				WHERE calendar_id = $1 AND specific_date = $2 AND is_active
			)
		`, cal.ID, dateArg(date)).Scan(&state.Overridden); err != nil {
			return fmt.Errorf("check override: %w", err)
		}

		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM bookings
			WHERE calendar_id = $1
			  AND booking_date = $2
			  AND start_minute = $3
			  AND end_minute = $4
			  AND status <> 'CANCELLED'
		`, cal.ID, dateArg(date), slot.StartTime.Minutes(), slot.EndTime.Minutes()).Scan(&state.Active); err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}

		b, err := decide(state)
		if err != nil {
			return err
		}

		created, err = scanBooking(tx.QueryRow(ctx, `
			INSERT INTO bookings (id, calendar_id, slot_id, booking_date, start_minute, end_minute, status,
			                      booker_name, booker_email, booker_phone, prospect_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
			RETURNING `+bookingColumns,
			b.ID, b.CalendarID, b.SlotID, dateArg(b.BookingDate), b.StartTime.Minutes(), b.EndTime.Minutes(),
			b.Status, b.Booker.Name, b.Booker.Email, b.Booker.Phone, b.ProspectID))
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns, id, to, from)
	return scanBooking(row)
}

func (r *PgRepository) ExpirePendingBookings(ctx context.Context, createdBefore time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE bookings
		SET status = 'CANCELLED',
		    updated_at = now()
		WHERE status = 'PENDING'
		  AND created_at < $1
		RETURNING `+bookingColumns, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *b)
	}
	return expired, rows.Err()
}
