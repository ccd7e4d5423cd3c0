package survey

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
)

type memRepository struct {
	mu        sync.Mutex
	surveys   map[uuid.UUID]Survey
	questions map[uuid.UUID]Question
	results   []SubmissionResult
}

func newMemRepository() *memRepository {
	return &memRepository{
		surveys:   make(map[uuid.UUID]Survey),
		questions: make(map[uuid.UUID]Question),
	}
}

func (m *memRepository) CreateSurvey(ctx context.Context, s Survey) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveys[s.ID] = s
	return &s, nil
}

func (m *memRepository) GetSurvey(ctx context.Context, id uuid.UUID) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, ErrSurveyNotFound
	}
	return &s, nil
}

func (m *memRepository) UpdateSurvey(ctx context.Context, s Survey) (*Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[s.ID]; !ok {
		return nil, ErrSurveyNotFound
	}
	m.surveys[s.ID] = s
	return &s, nil
}

func (m *memRepository) ListSurveys(ctx context.Context) ([]Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Survey
	for _, s := range m.surveys {
		out = append(out, s)
	}
	return out, nil
}

func (m *memRepository) listLocked(surveyID uuid.UUID) []Question {
	var out []Question
	for _, q := range m.questions {
		if q.SurveyID == surveyID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

func (m *memRepository) AddQuestion(ctx context.Context, q Question) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[q.SurveyID]; !ok {
		return nil, ErrSurveyNotFound
	}
	q.SortOrder = len(m.listLocked(q.SurveyID))
	m.questions[q.ID] = q
	return &q, nil
}

func (m *memRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return &q, nil
}

func (m *memRepository) UpdateQuestion(ctx context.Context, q Question) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; !ok {
		return nil, ErrQuestionNotFound
	}
	m.questions[q.ID] = q
	return &q, nil
}

func (m *memRepository) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return ErrQuestionNotFound
	}
	delete(m.questions, id)
	for i, rest := range m.listLocked(q.SurveyID) {
		rest.SortOrder = i
		m.questions[rest.ID] = rest
	}
	return nil
}

func (m *memRepository) ListQuestions(ctx context.Context, surveyID uuid.UUID) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(surveyID), nil
}

func (m *memRepository) ReorderQuestions(ctx context.Context, surveyID uuid.UUID, ids []uuid.UUID) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[surveyID]; !ok {
		return nil, ErrSurveyNotFound
	}
	existing := m.listLocked(surveyID)
	current := make([]uuid.UUID, len(existing))
	for i, q := range existing {
		current[i] = q.ID
	}
	if !isPermutation(current, ids) {
		return nil, ErrInvalidReorder
	}
	for i, id := range ids {
		q := m.questions[id]
		q.SortOrder = i
		m.questions[id] = q
	}
	return m.listLocked(surveyID), nil
}

func (m *memRepository) Submit(ctx context.Context, surveyID uuid.UUID, respondentHash string, fn SubmitFunc) (*SubmissionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior := 0
	if respondentHash != "" {
		for _, r := range m.results {
			if r.SurveyID == surveyID && r.RespondentHash == respondentHash {
				prior++
			}
		}
	}
	res, err := fn(prior)
	if err != nil {
		return nil, err
	}
	m.results = append(m.results, res)
	return &res, nil
}

func (m *memRepository) ListResults(ctx context.Context, surveyID uuid.UUID) ([]SubmissionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SubmissionResult
	for _, r := range m.results {
		if r.SurveyID == surveyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestLocker(t *testing.T) redisclient.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisclient.NewRedisLocker(client, 2*time.Second, 2*time.Second)
}
