package availability

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrBookingNotFound  = errors.New("booking not found")
)

// ReserveState is what the repository has read, under lock, about an
// occurrence before a booking is inserted.
type ReserveState struct {
	Slot     CalendarSlot
	Calendar Calendar
	// Overridden is true when the calendar has an active one-off slot on the date.
	Overridden bool
	// Active is the number of non-cancelled bookings in the slot's window on the date.
	Active int
}

// Repository contains all DB interactions needed by the allocator.
type Repository interface {
	CreateCalendar(ctx context.Context, cal Calendar) (*Calendar, error)
	GetCalendar(ctx context.Context, id uuid.UUID) (*Calendar, error)

	CreateSlot(ctx context.Context, slot CalendarSlot) (*CalendarSlot, error)
	ListSlots(ctx context.Context, calendarID uuid.UUID) ([]CalendarSlot, error)
	SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*CalendarSlot, error)

	// CountActiveBookings groups non-cancelled bookings of a calendar by window for dates in [from, to].
	CountActiveBookings(ctx context.Context, calendarID uuid.UUID, from, to civil.Date) (map[WindowKey]int, error)

	// Reserve locks the slot's calendar, reads the occurrence state and inserts the
	// booking returned by decide, all in one transaction. An error from decide
	// aborts the transaction and is returned unchanged.
	Reserve(ctx context.Context, slotID uuid.UUID, date civil.Date, decide func(ReserveState) (Booking, error)) (*Booking, error)

	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	// UpdateBookingStatus moves a booking from one status to another, returning
	// ErrBookingNotFound when no booking with id is in status from.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error)
	// ExpirePendingBookings cancels PENDING bookings created before the cutoff
	// and returns them.
	ExpirePendingBookings(ctx context.Context, createdBefore time.Time) ([]Booking, error)
}
