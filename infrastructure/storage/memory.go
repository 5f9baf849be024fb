package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// MemoryStore is an in-memory Store used by tests and local
// experimentation. All methods are safe for concurrent use.
// WithinTx provides no isolation; mutations apply immediately.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[int64]domain.User
	credentials map[int64][]domain.Credential
	tasks       map[int64]domain.Task
	responses   map[int64]domain.Response
	feedback    map[int64]domain.Feedback
	ratings     map[int64][]domain.FeedbackRating
	biasReports []domain.BiasReport
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]domain.User),
		credentials: make(map[int64][]domain.Credential),
		tasks:       make(map[int64]domain.Task),
		responses:   make(map[int64]domain.Response),
		feedback:    make(map[int64]domain.Feedback),
		ratings:     make(map[int64][]domain.FeedbackRating),
	}
}

// Seeding helpers.

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutCredential appends a credential for its user.
func (s *MemoryStore) PutCredential(cred domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.UserID] = append(s.credentials[cred.UserID], cred)
}

// PutTask inserts or replaces a task.
func (s *MemoryStore) PutTask(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

// PutResponse inserts or replaces a response.
func (s *MemoryStore) PutResponse(resp domain.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[resp.ID] = resp
}

// PutFeedback inserts or replaces a feedback entry.
func (s *MemoryStore) PutFeedback(fb domain.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[fb.ID] = fb
}

// PutRating appends a helpfulness rating for its feedback.
func (s *MemoryStore) PutRating(r domain.FeedbackRating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[r.FeedbackID] = append(s.ratings[r.FeedbackID], r)
}

// Store implementation.

func (s *MemoryStore) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) UpdateUserScores(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	existing.AuthorityScore = user.AuthorityScore
	existing.BaselineCredentialScore = user.BaselineCredentialScore
	existing.TrackRecordScore = user.TrackRecordScore
	s.users[user.ID] = existing
	return nil
}

func (s *MemoryStore) ListCredentials(ctx context.Context, userID int64) ([]domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds := make([]domain.Credential, len(s.credentials[userID]))
	copy(creds, s.credentials[userID])
	return creds, nil
}

func (s *MemoryStore) GetCredential(ctx context.Context, userID int64, credType string) (domain.Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.credentials[userID] {
		if cred.Type == credType {
			return cred, true, nil
		}
	}
	return domain.Credential{}, false, nil
}

func (s *MemoryStore) GetTask(ctx context.Context, taskID int64) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return task, nil
}

func (s *MemoryStore) ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tasks []domain.Task
	for _, task := range s.tasks {
		if task.Status == status {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *MemoryStore) UpdateTaskStatus(ctx context.Context, taskID int64, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.Status = status
	s.tasks[taskID] = task
	return nil
}

// taskIDOf resolves a feedback's task through its response. Callers
// hold the read lock.
func (s *MemoryStore) taskIDOf(fb domain.Feedback) (int64, bool) {
	resp, ok := s.responses[fb.ResponseID]
	if !ok {
		return 0, false
	}
	return resp.TaskID, true
}

func (s *MemoryStore) ListFeedbackByTask(ctx context.Context, taskID int64) ([]domain.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Feedback
	for _, fb := range s.feedback {
		tid, ok := s.taskIDOf(fb)
		if !ok || tid != taskID {
			continue
		}
		fb.Author = s.users[fb.UserID]
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemoryStore) ListPriorFeedbackByUser(ctx context.Context, userID int64, taskType domain.TaskType, before time.Time) ([]domain.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Feedback
	for _, fb := range s.feedback {
		if fb.UserID != userID || !fb.SubmittedAt.Before(before) {
			continue
		}
		tid, ok := s.taskIDOf(fb)
		if !ok {
			continue
		}
		if s.tasks[tid].Type != taskType {
			continue
		}
		fb.Author = s.users[fb.UserID]
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemoryStore) SetConsistencyScore(ctx context.Context, feedbackID int64, score float64) error {
	return s.setScore(feedbackID, func(fb *domain.Feedback) { fb.ConsistencyScore = &score })
}

func (s *MemoryStore) SetCorrectnessScore(ctx context.Context, feedbackID int64, score float64) error {
	return s.setScore(feedbackID, func(fb *domain.Feedback) { fb.CorrectnessScore = &score })
}

func (s *MemoryStore) setScore(feedbackID int64, apply func(*domain.Feedback)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb, ok := s.feedback[feedbackID]
	if !ok {
		return domain.ErrFeedbackNotFound
	}
	apply(&fb)
	s.feedback[feedbackID] = fb
	return nil
}

func (s *MemoryStore) ListFeedbackRatings(ctx context.Context, feedbackID int64) ([]domain.FeedbackRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ratings := make([]domain.FeedbackRating, len(s.ratings[feedbackID]))
	copy(ratings, s.ratings[feedbackID])
	return ratings, nil
}

func (s *MemoryStore) SaveBiasReport(ctx context.Context, report domain.BiasReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biasReports = append(s.biasReports, report)
	return nil
}

func (s *MemoryStore) ListBiasReports(ctx context.Context, taskID int64) ([]domain.BiasReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BiasReport
	for _, report := range s.biasReports {
		if report.TaskID == taskID {
			out = append(out, report)
		}
	}
	return out, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx ports.Store) error) error {
	return fn(s)
}
