package ports

import (
	"context"
	"time"

	"github.com/arial-it/rlcf/internal/domain"
)

// Store is the persistence boundary. The engine is agnostic to the
// storage technology as long as it can filter feedback by task and
// credentials by user and type. Implementations return the domain
// sentinel errors (domain.ErrTaskNotFound, domain.ErrUserNotFound,
// domain.ErrFeedbackNotFound) for absent rows.
type Store interface {
	// Users.

	GetUser(ctx context.Context, userID int64) (domain.User, error)
	// UpdateUserScores persists the three authority fields as one
	// read-modify-write; last write wins on the cached composite.
	UpdateUserScores(ctx context.Context, user domain.User) error
	ListCredentials(ctx context.Context, userID int64) ([]domain.Credential, error)
	// GetCredential returns the user's credential of the given type,
	// or domain.ErrFeedbackNotFound-style absence via ok=false.
	GetCredential(ctx context.Context, userID int64, credType string) (domain.Credential, bool, error)

	// Tasks and responses.

	GetTask(ctx context.Context, taskID int64) (domain.Task, error)
	ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID int64, status domain.TaskStatus) error

	// Feedback.

	// ListFeedbackByTask returns all feedback whose response belongs to
	// the task, each populated with its author, ordered by submission
	// time ascending.
	ListFeedbackByTask(ctx context.Context, taskID int64) ([]domain.Feedback, error)
	// ListPriorFeedbackByUser returns the user's feedback on tasks of
	// the given type submitted strictly before the cutoff, ordered by
	// submission time ascending. Used by confirmation bias.
	ListPriorFeedbackByUser(ctx context.Context, userID int64, taskType domain.TaskType, before time.Time) ([]domain.Feedback, error)
	SetConsistencyScore(ctx context.Context, feedbackID int64, score float64) error
	SetCorrectnessScore(ctx context.Context, feedbackID int64, score float64) error
	ListFeedbackRatings(ctx context.Context, feedbackID int64) ([]domain.FeedbackRating, error)

	// Bias reports (append-only audit trail).

	SaveBiasReport(ctx context.Context, report domain.BiasReport) error
	ListBiasReports(ctx context.Context, taskID int64) ([]domain.BiasReport, error)

	// WithinTx runs fn inside a transaction, rolling back on error.
	// Each orchestration phase uses its own transaction so one phase's
	// failure cannot poison another's writes.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
