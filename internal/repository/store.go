package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// can run either standalone or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ExamStore reads exam definitions and course enrollment.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListActive(ctx context.Context) ([]model.Exam, error)
	IsEnrolled(ctx context.Context, studentID, courseID int) (bool, error)
}

// QuestionStore reads the question bank of an exam.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	GetByID(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error)
}

// SessionStore persists exam sessions. Lookups return pgx.ErrNoRows when the
// row is absent; Create returns pgx.ErrNoRows when it lost a uniqueness race.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	// LockByExamAndStudent reads the row with FOR UPDATE (exclusive) or
	// FOR SHARE and must run inside a transaction.
	LockByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int, exclusive bool) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	UpdateTimeRemaining(ctx context.Context, id uuid.UUID, seconds int) error
	Complete(ctx context.Context, id uuid.UUID, finishedAt time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamSession, error)
}

// AnswerStore persists per-question answers.
type AnswerStore interface {
	Upsert(ctx context.Context, a *model.AnswerRecord) error
	ListByAttempt(ctx context.Context, examID uuid.UUID, studentID int) ([]model.AnswerRecord, error)
	DeleteByAttempt(ctx context.Context, examID uuid.UUID, studentID int) error
	InsertGraded(ctx context.Context, answers []model.AnswerRecord) error
}

// ResultStore persists final results.
type ResultStore interface {
	Upsert(ctx context.Context, r *model.ExamResult) error
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamResult, error)
}

// Repos bundles the stores bound to one connection or transaction.
type Repos struct {
	Exams     ExamStore
	Questions QuestionStore
	Sessions  SessionStore
	Answers   AnswerStore
	Results   ResultStore
}

// Store hands out repositories and runs transactional units of work.
type Store interface {
	Repos() Repos
	WithinTx(ctx context.Context, fn func(tx Repos) error) error
}

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Repos returns repositories running on the pool (autocommit).
func (s *PostgresStore) Repos() Repos {
	return newRepos(s.pool)
}

// WithinTx runs fn in a single transaction, committing when fn returns nil
// and rolling back otherwise.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Repos) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(newRepos(tx))
	})
}

var (
	_ ExamStore     = (*ExamRepository)(nil)
	_ QuestionStore = (*QuestionRepository)(nil)
	_ SessionStore  = (*ExamSessionRepository)(nil)
	_ AnswerStore   = (*AnswerRepository)(nil)
	_ ResultStore   = (*ResultRepository)(nil)
	_ Store         = (*PostgresStore)(nil)
)

func newRepos(db DBTX) Repos {
	return Repos{
		Exams:     NewExamRepository(db),
		Questions: NewQuestionRepository(db),
		Sessions:  NewExamSessionRepository(db),
		Answers:   NewAnswerRepository(db),
		Results:   NewResultRepository(db),
	}
}
