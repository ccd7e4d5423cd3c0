package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/coach-onboarding/internal/availability"
)

func createCalendarHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req availability.NewCalendar
		if !decodeJSON(w, r, &req) {
			return
		}
		cal, err := svc.CreateCalendar(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, cal)
	}
}

func createSlotHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req availability.NewSlot
		if !decodeJSON(w, r, &req) {
			return
		}
		slot, err := svc.CreateSlot(r.Context(), calendarID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, slot)
	}
}

func deactivateSlotHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		slot, err := svc.DeactivateSlot(r.Context(), slotID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slot)
	}
}

// listAvailabilityHandler accepts ?days=N; zero or absent uses the configured
// lookahead.
func listAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		days := 0
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be a non-negative integer")
				return
			}
			days = n
		}
		avail, err := svc.ListAvailableSlots(r.Context(), calendarID, days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, avail)
	}
}

func reserveSlotHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req BookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := svc.ReserveSlot(r.Context(), availability.ReserveRequest{
			CalendarID: calendarID,
			SlotID:     req.SlotID,
			Date:       req.Date,
			Booker:     req.Booker,
			ProspectID: req.ProspectID,
			Status:     req.Status,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func cancelBookingHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		b, err := svc.CancelBooking(r.Context(), bookingID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func bookingStatusHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req BookingStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		b, err := svc.UpdateBookingStatus(r.Context(), bookingID, req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}
