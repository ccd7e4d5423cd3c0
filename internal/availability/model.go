package availability

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingNoShow    BookingStatus = "NO_SHOW"
)

// bookingTransitions lists the statuses a booking may move to from each status.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingNoShow, BookingCancelled},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow:
		return true
	}
	return false
}

// CanMoveTo reports whether a booking in s may be moved to next.
func (s BookingStatus) CanMoveTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TimeOfDay is a wall-clock time without a date or zone, e.g. 09:30.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Minutes() < o.Minutes()
}

// On returns the instant this wall-clock time occurs on date d in loc.
func (t TimeOfDay) On(d civil.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Calendar struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	MeetingLink string    `json:"meeting_link"`
	Timezone    string    `json:"timezone"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CalendarSlot is a recurring weekly availability rule, or a one-off rule when
// SpecificDate is set.
type CalendarSlot struct {
	ID           uuid.UUID    `json:"id"`
	CalendarID   uuid.UUID    `json:"calendar_id"`
	DayOfWeek    time.Weekday `json:"day_of_week"`
	StartTime    TimeOfDay    `json:"start_time"`
	EndTime      TimeOfDay    `json:"end_time"`
	MaxBookings  int          `json:"max_bookings"`
	IsActive     bool         `json:"is_active"`
	SpecificDate *civil.Date  `json:"specific_date,omitempty"`
	Timezone     string       `json:"timezone,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsOverride reports whether the slot is a one-off occurrence.
func (s CalendarSlot) IsOverride() bool {
	return s.SpecificDate != nil
}

type Booker struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

type Booking struct {
	ID          uuid.UUID     `json:"id"`
	CalendarID  uuid.UUID     `json:"calendar_id"`
	SlotID      uuid.UUID     `json:"slot_id"`
	BookingDate civil.Date    `json:"booking_date"`
	StartTime   TimeOfDay     `json:"start_time"`
	EndTime     TimeOfDay     `json:"end_time"`
	Status      BookingStatus `json:"status"`
	Booker      Booker        `json:"booker"`
	ProspectID  *uuid.UUID    `json:"prospect_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Occurrence is a slot projected onto one concrete date.
type Occurrence struct {
	SlotID      uuid.UUID  `json:"slot_id"`
	CalendarID  uuid.UUID  `json:"calendar_id"`
	Date        civil.Date `json:"date"`
	StartTime   TimeOfDay  `json:"start_time"`
	EndTime     TimeOfDay  `json:"end_time"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	Timezone    string     `json:"timezone"`
	MaxBookings int        `json:"max_bookings"`
	Remaining   int        `json:"remaining"`
}

type Availability struct {
	CalendarID  uuid.UUID    `json:"calendar_id"`
	MeetingLink string       `json:"meeting_link"`
	Occurrences []Occurrence `json:"occurrences"`
}

type Reservation struct {
	Booking     Booking   `json:"booking"`
	MeetingLink string    `json:"meeting_link"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// WindowKey identifies the capacity bucket bookings are counted against.
type WindowKey struct {
	Date  civil.Date
	Start TimeOfDay
	End   TimeOfDay
}
