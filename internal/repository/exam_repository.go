package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	db DBTX
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db DBTX) *ExamRepository {
	return &ExamRepository{db: db}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.db.QueryRow(ctx,
		`SELECT id, course_id, title, scheduled_start, scheduled_end,
		        duration_minutes, passing_score, status
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.CourseID, &e.Title, &e.ScheduledStart, &e.ScheduledEnd,
		&e.DurationMinutes, &e.PassingScore, &e.Status)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListActive retrieves exams students may currently be sitting.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, course_id, title, scheduled_start, scheduled_end,
		        duration_minutes, passing_score, status
		 FROM exams
		 WHERE status IN ($1, $2) AND scheduled_end > NOW()
		 ORDER BY scheduled_start`,
		model.ExamStatusActive, model.ExamStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Title, &e.ScheduledStart, &e.ScheduledEnd,
			&e.DurationMinutes, &e.PassingScore, &e.Status); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// IsEnrolled reports whether the student is enrolled in the course.
func (r *ExamRepository) IsEnrolled(ctx context.Context, studentID, courseID int) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM course_enrollments WHERE student_id = $1 AND course_id = $2
		 )`, studentID, courseID,
	).Scan(&ok)
	return ok, err
}
