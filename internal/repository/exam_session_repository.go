package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	db DBTX
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(db DBTX) *ExamSessionRepository {
	return &ExamSessionRepository{db: db}
}

const sessionColumns = `id, exam_id, student_id, started_at, finished_at, time_remaining, status, updated_at`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartedAt, &s.FinishedAt, &s.TimeRemaining, &s.Status, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetByExamAndStudent retrieves a session for a specific exam-student combination.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
}

// LockByExamAndStudent reads the session and row-locks it until the
// surrounding transaction ends.
func (r *ExamSessionRepository) LockByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int, exclusive bool) (*model.ExamSession, error) {
	lock := "FOR SHARE"
	if exclusive {
		lock = "FOR UPDATE"
	}
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2 `+lock, examID, studentID))
}

// Create inserts a new exam session (student begins the exam). On a
// concurrent insert for the same pair nothing is returned and Scan yields
// pgx.ErrNoRows.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, started_at, time_remaining, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, updated_at`,
		s.ExamID, s.StudentID, s.StartedAt, s.TimeRemaining, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.UpdatedAt)
}

// UpdateTimeRemaining overwrites the persisted countdown of an in-progress session.
func (r *ExamSessionRepository) UpdateTimeRemaining(ctx context.Context, id uuid.UUID, seconds int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE exam_sessions
		 SET time_remaining = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		seconds, id, model.SessionStatusInProgress)
	return err
}

// Complete moves an in-progress session to COMPLETED. It reports false when
// the session was already completed.
func (r *ExamSessionRepository) Complete(ctx context.Context, id uuid.UUID, finishedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, finished_at = $2, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		model.SessionStatusCompleted, finishedAt, id, model.SessionStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpired returns in-progress sessions whose start + duration + grace is before now.
func (r *ExamSessionRepository) ListExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.exam_id, s.student_id, s.started_at, s.finished_at, s.time_remaining, s.status, s.updated_at
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = $1
		   AND s.started_at + e.duration_minutes * INTERVAL '1 minute' + $2::int * INTERVAL '1 second' < $3
		 ORDER BY s.started_at
		 LIMIT $4`,
		model.SessionStatusInProgress, int(grace/time.Second), now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
