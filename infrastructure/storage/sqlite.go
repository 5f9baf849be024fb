// Package storage provides the persistence implementations of the
// Store port: a SQLite store for production use and an in-memory store
// for tests.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// schema is applied on open. Statements are idempotent so reopening an
// existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                        INTEGER PRIMARY KEY AUTOINCREMENT,
    username                  TEXT NOT NULL UNIQUE,
    authority_score           REAL NOT NULL DEFAULT 0,
    track_record_score        REAL NOT NULL DEFAULT 0.5,
    baseline_credential_score REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS credentials (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    type    TEXT NOT NULL,
    value   TEXT NOT NULL,
    weight  REAL NOT NULL DEFAULT 0,
    UNIQUE (user_id, type)
);

CREATE TABLE IF NOT EXISTS tasks (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    task_type         TEXT NOT NULL,
    input_data        TEXT NOT NULL DEFAULT '{}',
    ground_truth_data TEXT,
    status            TEXT NOT NULL DEFAULT 'OPEN',
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS responses (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id       INTEGER NOT NULL REFERENCES tasks(id),
    output_data   TEXT NOT NULL DEFAULT '{}',
    model_version TEXT NOT NULL DEFAULT '',
    generated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS feedback (
    id                           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id                      INTEGER NOT NULL REFERENCES users(id),
    response_id                  INTEGER NOT NULL REFERENCES responses(id),
    is_blind_phase               INTEGER NOT NULL DEFAULT 1,
    accuracy_score               REAL NOT NULL DEFAULT 0,
    utility_score                REAL NOT NULL DEFAULT 0,
    transparency_score           REAL NOT NULL DEFAULT 0,
    feedback_data                TEXT NOT NULL DEFAULT '{}',
    community_helpfulness_rating INTEGER NOT NULL DEFAULT 0,
    consistency_score            REAL,
    correctness_score            REAL,
    submitted_at                 TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS feedback_ratings (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    feedback_id       INTEGER NOT NULL REFERENCES feedback(id),
    user_id           INTEGER NOT NULL REFERENCES users(id),
    helpfulness_score INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bias_reports (
    id            TEXT PRIMARY KEY,
    task_id       INTEGER NOT NULL REFERENCES tasks(id),
    user_id       INTEGER NOT NULL DEFAULT 0,
    bias_type     TEXT NOT NULL,
    bias_score    REAL NOT NULL,
    calculated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_responses_task ON responses(task_id);
CREATE INDEX IF NOT EXISTS idx_feedback_response ON feedback(response_id);
CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback(user_id);
CREATE INDEX IF NOT EXISTS idx_bias_reports_task ON bias_reports(task_id);
`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting one implementation back both the store and its transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is the production Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
	q  querier
}

var _ ports.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at dsn, enables
// WAL journaling and foreign keys, and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "open sqlite database %q", dsn)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "apply %q", pragma)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "apply schema")
	}

	return &SQLiteStore{db: db, q: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, username, authority_score, track_record_score, baseline_credential_score
		 FROM users WHERE id = ?`, userID)

	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.AuthorityScore, &u.TrackRecordScore, &u.BaselineCredentialScore)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, eris.Wrapf(err, "get user %d", userID)
	}
	return u, nil
}

func (s *SQLiteStore) UpdateUserScores(ctx context.Context, user domain.User) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users
		 SET authority_score = ?, track_record_score = ?, baseline_credential_score = ?
		 WHERE id = ?`,
		user.AuthorityScore, user.TrackRecordScore, user.BaselineCredentialScore, user.ID)
	if err != nil {
		return eris.Wrapf(err, "update scores for user %d", user.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *SQLiteStore) ListCredentials(ctx context.Context, userID int64) ([]domain.Credential, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, type, value, weight FROM credentials WHERE user_id = ? ORDER BY type`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "list credentials for user %d", userID)
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Type, &c.Value, &c.Weight); err != nil {
			return nil, eris.Wrap(err, "scan credential")
		}
		creds = append(creds, c)
	}
	return creds, eris.Wrap(rows.Err(), "iterate credentials")
}

func (s *SQLiteStore) GetCredential(ctx context.Context, userID int64, credType string) (domain.Credential, bool, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, type, value, weight FROM credentials WHERE user_id = ? AND type = ?`,
		userID, credType)

	var c domain.Credential
	err := row.Scan(&c.ID, &c.UserID, &c.Type, &c.Value, &c.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, false, nil
	}
	if err != nil {
		return domain.Credential{}, false, eris.Wrapf(err, "get %s credential for user %d", credType, userID)
	}
	return c, true, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID int64) (domain.Task, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, task_type, input_data, ground_truth_data, status, created_at
		 FROM tasks WHERE id = ?`, taskID)

	var (
		t           domain.Task
		inputRaw    []byte
		truthRaw    sql.NullString
		taskTypeRaw string
		statusRaw   string
	)
	err := row.Scan(&t.ID, &taskTypeRaw, &inputRaw, &truthRaw, &statusRaw, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, eris.Wrapf(err, "get task %d", taskID)
	}

	t.Type = domain.TaskType(taskTypeRaw)
	t.Status = domain.TaskStatus(statusRaw)
	if err := json.Unmarshal(inputRaw, &t.InputData); err != nil {
		return domain.Task{}, eris.Wrapf(err, "decode input data for task %d", taskID)
	}
	if truthRaw.Valid && truthRaw.String != "" {
		if err := json.Unmarshal([]byte(truthRaw.String), &t.GroundTruth); err != nil {
			return domain.Task{}, eris.Wrapf(err, "decode ground truth for task %d", taskID)
		}
	}
	return t, nil
}

func (s *SQLiteStore) ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id FROM tasks WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, eris.Wrapf(err, "list tasks with status %s", status)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "scan task id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate tasks")
	}

	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID int64, status domain.TaskStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ?`, string(status), taskID)
	if err != nil {
		return eris.Wrapf(err, "update status for task %d", taskID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// feedbackSelect joins feedback to its author and response so one query
// yields fully populated rows.
const feedbackSelect = `
SELECT f.id, f.user_id, f.response_id, f.is_blind_phase,
       f.accuracy_score, f.utility_score, f.transparency_score,
       f.feedback_data, f.community_helpfulness_rating,
       f.consistency_score, f.correctness_score, f.submitted_at,
       u.username, u.authority_score, u.track_record_score, u.baseline_credential_score
FROM feedback f
JOIN users u ON u.id = f.user_id
JOIN responses r ON r.id = f.response_id`

func scanFeedback(rows *sql.Rows) (domain.Feedback, error) {
	var (
		fb          domain.Feedback
		dataRaw     []byte
		consistency sql.NullFloat64
		correctness sql.NullFloat64
	)
	err := rows.Scan(
		&fb.ID, &fb.UserID, &fb.ResponseID, &fb.IsBlindPhase,
		&fb.AccuracyScore, &fb.UtilityScore, &fb.TransparencyScore,
		&dataRaw, &fb.CommunityHelpfulnessRating,
		&consistency, &correctness, &fb.SubmittedAt,
		&fb.Author.Username, &fb.Author.AuthorityScore,
		&fb.Author.TrackRecordScore, &fb.Author.BaselineCredentialScore,
	)
	if err != nil {
		return domain.Feedback{}, eris.Wrap(err, "scan feedback")
	}
	fb.Author.ID = fb.UserID
	if err := json.Unmarshal(dataRaw, &fb.FeedbackData); err != nil {
		return domain.Feedback{}, eris.Wrapf(err, "decode feedback data for feedback %d", fb.ID)
	}
	if consistency.Valid {
		fb.ConsistencyScore = &consistency.Float64
	}
	if correctness.Valid {
		fb.CorrectnessScore = &correctness.Float64
	}
	return fb, nil
}

func (s *SQLiteStore) listFeedback(ctx context.Context, query string, args ...any) ([]domain.Feedback, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query feedback")
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "iterate feedback")
}

func (s *SQLiteStore) ListFeedbackByTask(ctx context.Context, taskID int64) ([]domain.Feedback, error) {
	return s.listFeedback(ctx,
		feedbackSelect+` WHERE r.task_id = ? ORDER BY f.submitted_at ASC, f.id ASC`, taskID)
}

func (s *SQLiteStore) ListPriorFeedbackByUser(ctx context.Context, userID int64, taskType domain.TaskType, before time.Time) ([]domain.Feedback, error) {
	return s.listFeedback(ctx,
		feedbackSelect+`
		JOIN tasks t ON t.id = r.task_id
		WHERE f.user_id = ? AND t.task_type = ? AND f.submitted_at < ?
		ORDER BY f.submitted_at ASC, f.id ASC`,
		userID, string(taskType), before)
}

func (s *SQLiteStore) setFeedbackScore(ctx context.Context, column string, feedbackID int64, score float64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE feedback SET `+column+` = ? WHERE id = ?`, score, feedbackID)
	if err != nil {
		return eris.Wrapf(err, "set %s for feedback %d", column, feedbackID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return domain.ErrFeedbackNotFound
	}
	return nil
}

func (s *SQLiteStore) SetConsistencyScore(ctx context.Context, feedbackID int64, score float64) error {
	return s.setFeedbackScore(ctx, "consistency_score", feedbackID, score)
}

func (s *SQLiteStore) SetCorrectnessScore(ctx context.Context, feedbackID int64, score float64) error {
	return s.setFeedbackScore(ctx, "correctness_score", feedbackID, score)
}

func (s *SQLiteStore) ListFeedbackRatings(ctx context.Context, feedbackID int64) ([]domain.FeedbackRating, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, feedback_id, user_id, helpfulness_score
		 FROM feedback_ratings WHERE feedback_id = ? ORDER BY id`, feedbackID)
	if err != nil {
		return nil, eris.Wrapf(err, "list ratings for feedback %d", feedbackID)
	}
	defer rows.Close()

	var ratings []domain.FeedbackRating
	for rows.Next() {
		var r domain.FeedbackRating
		if err := rows.Scan(&r.ID, &r.FeedbackID, &r.UserID, &r.HelpfulnessScore); err != nil {
			return nil, eris.Wrap(err, "scan rating")
		}
		ratings = append(ratings, r)
	}
	return ratings, eris.Wrap(rows.Err(), "iterate ratings")
}

func (s *SQLiteStore) SaveBiasReport(ctx context.Context, report domain.BiasReport) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO bias_reports (id, task_id, user_id, bias_type, bias_score, calculated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.TaskID, report.UserID, string(report.BiasType),
		report.BiasScore, report.CalculatedAt)
	return eris.Wrapf(err, "save bias report %s", report.ID)
}

func (s *SQLiteStore) ListBiasReports(ctx context.Context, taskID int64) ([]domain.BiasReport, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, task_id, user_id, bias_type, bias_score, calculated_at
		 FROM bias_reports WHERE task_id = ? ORDER BY calculated_at, id`, taskID)
	if err != nil {
		return nil, eris.Wrapf(err, "list bias reports for task %d", taskID)
	}
	defer rows.Close()

	var reports []domain.BiasReport
	for rows.Next() {
		var (
			r       domain.BiasReport
			typeRaw string
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.UserID, &typeRaw, &r.BiasScore, &r.CalculatedAt); err != nil {
			return nil, eris.Wrap(err, "scan bias report")
		}
		r.BiasType = domain.BiasType(typeRaw)
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "iterate bias reports")
}

// Insert operations. These sit outside the Store port; the engine only
// reads and scores, while ingestion surfaces (CLI seeding, an API
// layer) create rows through the concrete store.

// CreateUser inserts a user and returns its id.
func (s *SQLiteStore) CreateUser(ctx context.Context, user domain.User) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO users (username, authority_score, track_record_score, baseline_credential_score)
		 VALUES (?, ?, ?, ?)`,
		user.Username, user.AuthorityScore, user.TrackRecordScore, user.BaselineCredentialScore)
	if err != nil {
		return 0, eris.Wrapf(err, "create user %q", user.Username)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "last insert id")
}

// AddCredential inserts or replaces the user's credential of its type.
func (s *SQLiteStore) AddCredential(ctx context.Context, cred domain.Credential) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO credentials (user_id, type, value, weight) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, type) DO UPDATE SET value = excluded.value, weight = excluded.weight`,
		cred.UserID, cred.Type, cred.Value, cred.Weight)
	return eris.Wrapf(err, "add %s credential for user %d", cred.Type, cred.UserID)
}

// CreateTask inserts a task and returns its id.
func (s *SQLiteStore) CreateTask(ctx context.Context, task domain.Task) (int64, error) {
	inputRaw, err := json.Marshal(task.InputData)
	if err != nil {
		return 0, eris.Wrap(err, "encode input data")
	}
	var truthRaw any
	if task.GroundTruth != nil {
		encoded, err := json.Marshal(task.GroundTruth)
		if err != nil {
			return 0, eris.Wrap(err, "encode ground truth")
		}
		truthRaw = string(encoded)
	}
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO tasks (task_type, input_data, ground_truth_data, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(task.Type), string(inputRaw), truthRaw, string(task.Status), createdAt)
	if err != nil {
		return 0, eris.Wrap(err, "create task")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "last insert id")
}

// CreateResponse inserts a response and returns its id.
func (s *SQLiteStore) CreateResponse(ctx context.Context, resp domain.Response) (int64, error) {
	outputRaw, err := json.Marshal(resp.OutputData)
	if err != nil {
		return 0, eris.Wrap(err, "encode output data")
	}
	generatedAt := resp.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO responses (task_id, output_data, model_version, generated_at)
		 VALUES (?, ?, ?, ?)`,
		resp.TaskID, string(outputRaw), resp.ModelVersion, generatedAt)
	if err != nil {
		return 0, eris.Wrapf(err, "create response for task %d", resp.TaskID)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "last insert id")
}

// CreateFeedback inserts a feedback entry and returns its id.
func (s *SQLiteStore) CreateFeedback(ctx context.Context, fb domain.Feedback) (int64, error) {
	dataRaw, err := json.Marshal(fb.FeedbackData)
	if err != nil {
		return 0, eris.Wrap(err, "encode feedback data")
	}
	submittedAt := fb.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO feedback (user_id, response_id, is_blind_phase,
		                       accuracy_score, utility_score, transparency_score,
		                       feedback_data, community_helpfulness_rating, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.UserID, fb.ResponseID, fb.IsBlindPhase,
		fb.AccuracyScore, fb.UtilityScore, fb.TransparencyScore,
		string(dataRaw), fb.CommunityHelpfulnessRating, submittedAt)
	if err != nil {
		return 0, eris.Wrapf(err, "create feedback for response %d", fb.ResponseID)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "last insert id")
}

// AddFeedbackRating inserts a helpfulness rating.
func (s *SQLiteStore) AddFeedbackRating(ctx context.Context, r domain.FeedbackRating) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO feedback_ratings (feedback_id, user_id, helpfulness_score) VALUES (?, ?, ?)`,
		r.FeedbackID, r.UserID, r.HelpfulnessScore)
	return eris.Wrapf(err, "rate feedback %d", r.FeedbackID)
}

// WithinTx runs fn against a transaction-scoped view of the store.
// Nested transactions run in the enclosing one.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx ports.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}

	txStore := &SQLiteStore{q: tx}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return eris.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "commit transaction")
}
