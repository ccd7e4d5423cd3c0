package pipeline

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/coach-onboarding/internal/accounts"
	"github.com/hackgods/coach-onboarding/internal/availability"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
)

// memRepository keeps prospects in memory. Transition holds the mutex for the
// whole read-mutate-write, like the row lock does in Postgres.
type memRepository struct {
	mu        sync.Mutex
	prospects map[uuid.UUID]Prospect
	history   []StatusHistory
	seq       time.Time
}

func newMemRepository() *memRepository {
	return &memRepository{
		prospects: make(map[uuid.UUID]Prospect),
		seq:       time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memRepository) tick() time.Time {
	m.seq = m.seq.Add(time.Second)
	return m.seq
}

func (m *memRepository) appendHistory(id uuid.UUID, from *Status, to Status, c Change) {
	m.history = append(m.history, StatusHistory{
		ID:         uuid.New(),
		ProspectID: id,
		FromStatus: from,
		ToStatus:   to,
		Notes:      c.Notes,
		Actor:      c.Actor,
		CreatedAt:  m.tick(),
	})
}

func (m *memRepository) Create(ctx context.Context, p Prospect, first Change) (*Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.prospects[p.ID] = p
	m.appendHistory(p.ID, nil, p.Status, first)
	return &p, nil
}

func (m *memRepository) Get(ctx context.Context, id uuid.UUID) (*Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prospects[id]
	if !ok {
		return nil, ErrProspectNotFound
	}
	return &p, nil
}

func (m *memRepository) GetByToken(ctx context.Context, kind TokenKind, token string) (*Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prospects {
		if tokenOf(&p, kind) == token {
			return &p, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *memRepository) List(ctx context.Context, f ListFilter) ([]Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Prospect
	for _, p := range m.prospects {
		if f.Status == nil || p.Status == *f.Status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepository) History(ctx context.Context, prospectID uuid.UUID) ([]StatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatusHistory
	for _, h := range m.history {
		if h.ProspectID == prospectID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memRepository) Transition(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.prospects[id]
	if !ok {
		return nil, ErrProspectNotFound
	}
	next := current
	change, err := fn(ctx, &next)
	if err != nil {
		return nil, err
	}
	if change.Unchanged {
		return &current, nil
	}

	next.UpdatedAt = m.tick()
	m.prospects[id] = next
	from := current.Status
	m.appendHistory(id, &from, next.Status, change)
	return &next, nil
}

// fakeSlots hands out seats from a fixed capacity per (slot, date).
type fakeSlots struct {
	mu        sync.Mutex
	capacity  int
	bookings  map[uuid.UUID]availability.Booking
	cancelled []uuid.UUID
}

func newFakeSlots(capacity int) *fakeSlots {
	return &fakeSlots{capacity: capacity, bookings: make(map[uuid.UUID]availability.Booking)}
}

func (f *fakeSlots) ReserveSlot(ctx context.Context, req availability.ReserveRequest) (*availability.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	used := 0
	for _, b := range f.bookings {
		if b.SlotID == req.SlotID && b.BookingDate == req.Date && b.Status != availability.BookingCancelled {
			used++
		}
	}
	if used >= f.capacity {
		return nil, availability.ErrSlotUnavailable
	}
	b := availability.Booking{
		ID:          uuid.New(),
		CalendarID:  req.CalendarID,
		SlotID:      req.SlotID,
		BookingDate: req.Date,
		Status:      req.Status,
		Booker:      req.Booker,
		ProspectID:  req.ProspectID,
	}
	f.bookings[b.ID] = b
	return &availability.Reservation{
		Booking:     b,
		MeetingLink: "https://meet.example.com/orientation",
		StartsAt:    req.Date.In(time.UTC).Add(10 * time.Hour),
		EndsAt:      req.Date.In(time.UTC).Add(11 * time.Hour),
	}, nil
}

func (f *fakeSlots) CancelBooking(ctx context.Context, id uuid.UUID) (*availability.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, availability.ErrBookingNotFound
	}
	b.Status = availability.BookingCancelled
	f.bookings[id] = b
	f.cancelled = append(f.cancelled, id)
	return &b, nil
}

type fakeIssuer struct {
	mu     sync.Mutex
	issued []accounts.Identity
	err    error
}

func (f *fakeIssuer) Issue(ctx context.Context, id accounts.Identity) (*accounts.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.issued = append(f.issued, id)
	return &accounts.Credentials{
		UserID:            uuid.New(),
		CoachProfileID:    uuid.New(),
		TemporaryPassword: "Tmp-Password-123",
	}, nil
}

func newTestLocker(t *testing.T) redisclient.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisclient.NewRedisLocker(client, 2*time.Second, 2*time.Second)
}
