package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/coach-onboarding/internal/pipeline"
)

func createProspectHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.NewProspect
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.CreateProspect(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func listProspectsHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f pipeline.ListFilter
		if raw := q.Get("status"); raw != "" {
			st := pipeline.Status(raw)
			f.Status = &st
		}
		for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
			raw := q.Get(name)
			if raw == "" {
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
				return
			}
			*dst = n
		}

		prospects, err := svc.List(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if prospects == nil {
			prospects = []pipeline.Prospect{}
		}
		writeJSON(w, http.StatusOK, prospects)
	}
}

func getProspectHandler(svc ProspectService) http.HandlerFunc {
	return prospectAction(func(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error) {
		return svc.Get(ctx, id)
	})
}

func prospectHistoryHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		history, err := svc.History(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

// prospectAction serves the bodiless operations on one prospect.
func prospectAction(fn func(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		p, err := fn(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// notesAction serves operations that take optional notes.
func notesAction(fn func(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req NotesRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		p, err := fn(r.Context(), id, req.Notes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// tokenAction serves the callbacks that identify the prospect by token.
func tokenAction(fn func(ctx context.Context, token string) (*pipeline.Prospect, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := fn(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func completeAssessmentHandler(svc ProspectService) http.HandlerFunc {
	return tokenAction(func(ctx context.Context, token string) (*pipeline.Prospect, error) {
		return svc.CompleteAssessment(ctx, token)
	})
}

func scheduleOrientationHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req pipeline.OrientationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		o, err := svc.ScheduleOrientation(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func completeOrientationHandler(svc ProspectService) http.HandlerFunc {
	return notesAction(func(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error) {
		return svc.CompleteOrientation(ctx, id, notes)
	})
}

func businessFormTokenHandler(svc ProspectService) http.HandlerFunc {
	return prospectAction(func(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error) {
		return svc.GenerateBusinessFormToken(ctx, id)
	})
}

func submitBusinessFormHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form pipeline.BusinessForm
		if !decodeJSON(w, r, &form) {
			return
		}
		p, err := svc.SubmitBusinessForm(r.Context(), chi.URLParam(r, "token"), form)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func scheduleInterviewHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req ScheduleInterviewRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.ScheduleInterview(r.Context(), id, req.ScheduledAt, req.Notes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func completeInterviewHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req InterviewResultRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.CompleteInterview(r.Context(), id, req.Result, req.Notes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func acceptanceTokenHandler(svc ProspectService) http.HandlerFunc {
	return prospectAction(func(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error) {
		return svc.GenerateAcceptanceToken(ctx, id)
	})
}

func acceptOfferHandler(svc ProspectService) http.HandlerFunc {
	return tokenAction(func(ctx context.Context, token string) (*pipeline.Prospect, error) {
		return svc.AcceptOffer(ctx, token)
	})
}

func recordPaymentHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var pay pipeline.Payment
		if !decodeJSON(w, r, &pay) {
			return
		}
		p, err := svc.RecordPayment(r.Context(), id, pay)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func createAccountHandler(svc ProspectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		acct, err := svc.CreateCoachFromProspect(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, acct)
	}
}

func rejectProspectHandler(svc ProspectService) http.HandlerFunc {
	return notesAction(func(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error) {
		return svc.Reject(ctx, id, notes)
	})
}
