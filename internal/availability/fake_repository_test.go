package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
)

// memRepository is an in-memory Repository. Reserve holds the mutex for the
// whole read-check-insert, which is what the calendar row lock gives in Postgres.
type memRepository struct {
	mu        sync.Mutex
	calendars map[uuid.UUID]Calendar
	slots     map[uuid.UUID]CalendarSlot
	bookings  map[uuid.UUID]Booking
}

func newMemRepository() *memRepository {
	return &memRepository{
		calendars: make(map[uuid.UUID]Calendar),
		slots:     make(map[uuid.UUID]CalendarSlot),
		bookings:  make(map[uuid.UUID]Booking),
	}
}

func (m *memRepository) CreateCalendar(ctx context.Context, cal Calendar) (*Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars[cal.ID] = cal
	return &cal, nil
}

func (m *memRepository) GetCalendar(ctx context.Context, id uuid.UUID) (*Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calendars[id]
	if !ok {
		return nil, ErrCalendarNotFound
	}
	return &c, nil
}

func (m *memRepository) CreateSlot(ctx context.Context, slot CalendarSlot) (*CalendarSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot.ID] = slot
	return &slot, nil
}

func (m *memRepository) ListSlots(ctx context.Context, calendarID uuid.UUID) ([]CalendarSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CalendarSlot
	for _, s := range m.slots {
		if s.CalendarID == calendarID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepository) SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*CalendarSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s.IsActive = active
	m.slots[id] = s
	return &s, nil
}

func (m *memRepository) CountActiveBookings(ctx context.Context, calendarID uuid.UUID, from, to civil.Date) (map[WindowKey]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[WindowKey]int)
	for _, b := range m.bookings {
		if b.CalendarID != calendarID || b.Status == BookingCancelled {
			continue
		}
		if b.BookingDate.Before(from) || b.BookingDate.After(to) {
			continue
		}
		out[WindowKey{Date: b.BookingDate, Start: b.StartTime, End: b.EndTime}]++
	}
	return out, nil
}

func (m *memRepository) Reserve(ctx context.Context, slotID uuid.UUID, date civil.Date, decide func(ReserveState) (Booking, error)) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	state := ReserveState{Slot: slot, Calendar: m.calendars[slot.CalendarID]}
	for _, s := range m.slots {
		if s.CalendarID == slot.CalendarID && s.IsActive && s.IsOverride() && *s.SpecificDate == date {
			state.Overridden = true
		}
	}
	for _, b := range m.bookings {
		if b.CalendarID == slot.CalendarID && b.BookingDate == date && b.StartTime == slot.StartTime &&
			b.EndTime == slot.EndTime && b.Status != BookingCancelled {
			state.Active++
		}
	}

	b, err := decide(state)
	if err != nil {
		return nil, err
	}
	m.bookings[b.ID] = b
	return &b, nil
}

func (m *memRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (m *memRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	m.bookings[id] = b
	return &b, nil
}

func (m *memRepository) ExpirePendingBookings(ctx context.Context, createdBefore time.Time) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for id, b := range m.bookings {
		if b.Status == BookingPending && b.CreatedAt.Before(createdBefore) {
			b.Status = BookingCancelled
			m.bookings[id] = b
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memRepository) activeCount(slotID uuid.UUID, date civil.Date) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.SlotID == slotID && b.BookingDate == date && b.Status != BookingCancelled {
			n++
		}
	}
	return n
}

func newTestLocker(t *testing.T) redisclient.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisclient.NewRedisLocker(client, 2*time.Second, 2*time.Second)
}
