package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/coach-onboarding/internal/survey"
)

func createSurveyHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req survey.Settings
		if !decodeJSON(w, r, &req) {
			return
		}
		s, err := svc.CreateSurvey(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

func listSurveysHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := svc.ListSurveys(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if surveys == nil {
			surveys = []survey.Survey{}
		}
		writeJSON(w, http.StatusOK, surveys)
	}
}

func surveyAction(fn func(ctx context.Context, id uuid.UUID) (*survey.Survey, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		s, err := fn(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func getSurveyHandler(svc SurveyService) http.HandlerFunc {
	return surveyAction(func(ctx context.Context, id uuid.UUID) (*survey.Survey, error) {
		return svc.GetSurvey(ctx, id)
	})
}

func publishSurveyHandler(svc SurveyService) http.HandlerFunc {
	return surveyAction(func(ctx context.Context, id uuid.UUID) (*survey.Survey, error) {
		return svc.Publish(ctx, id)
	})
}

func closeSurveyHandler(svc SurveyService) http.HandlerFunc {
	return surveyAction(func(ctx context.Context, id uuid.UUID) (*survey.Survey, error) {
		return svc.Close(ctx, id)
	})
}

func updateSurveyHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req survey.Settings
		if !decodeJSON(w, r, &req) {
			return
		}
		s, err := svc.UpdateSurvey(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func listQuestionsHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		qs, err := svc.ListQuestions(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if qs == nil {
			qs = []survey.Question{}
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

func addQuestionHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req survey.QuestionInput
		if !decodeJSON(w, r, &req) {
			return
		}
		q, err := svc.AddQuestion(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

func updateQuestionHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		questionID, ok := uuidParam(w, r, "question_id")
		if !ok {
			return
		}
		var req survey.QuestionInput
		if !decodeJSON(w, r, &req) {
			return
		}
		q, err := svc.UpdateQuestion(r.Context(), id, questionID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func deleteQuestionHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		questionID, ok := uuidParam(w, r, "question_id")
		if !ok {
			return
		}
		if err := svc.DeleteQuestion(r.Context(), id, questionID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reorderQuestionsHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req ReorderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		qs, err := svc.ReorderQuestions(r.Context(), id, req.QuestionIDs)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

// submitSurveyHandler returns the stored result as the respondent may see it.
func submitSurveyHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req survey.Submission
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := svc.Submit(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		s, err := svc.GetSurvey(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res.ForRespondent(*s))
	}
}

func listResultsHandler(svc SurveyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		results, err := svc.ListResults(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if results == nil {
			results = []survey.SubmissionResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}
