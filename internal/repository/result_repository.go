package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ResultRepository handles exam result data access.
type ResultRepository struct {
	db DBTX
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db DBTX) *ResultRepository {
	return &ResultRepository{db: db}
}

// Upsert inserts the result or replaces the one already stored for the pair.
func (r *ResultRepository) Upsert(ctx context.Context, res *model.ExamResult) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exam_results (exam_id, student_id, total_questions, correct_count, score,
		                           total_marks, percentage, grade, gpa, passed, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET total_questions = EXCLUDED.total_questions,
		     correct_count   = EXCLUDED.correct_count,
		     score           = EXCLUDED.score,
		     total_marks     = EXCLUDED.total_marks,
		     percentage      = EXCLUDED.percentage,
		     grade           = EXCLUDED.grade,
		     gpa             = EXCLUDED.gpa,
		     passed          = EXCLUDED.passed,
		     submitted_at    = EXCLUDED.submitted_at
		 RETURNING id`,
		res.ExamID, res.StudentID, res.TotalQuestions, res.CorrectCount, res.Score,
		res.TotalMarks, res.Percentage, res.Grade, res.GPA, res.Passed, res.SubmittedAt,
	).Scan(&res.ID)
}

// GetByExamAndStudent retrieves the result of one attempt.
func (r *ResultRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamResult, error) {
	res := &model.ExamResult{}
	err := r.db.QueryRow(ctx,
		`SELECT id, exam_id, student_id, total_questions, correct_count, score,
		        total_marks, percentage, grade, gpa, passed, submitted_at
		 FROM exam_results
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&res.ID, &res.ExamID, &res.StudentID, &res.TotalQuestions, &res.CorrectCount, &res.Score,
		&res.TotalMarks, &res.Percentage, &res.Grade, &res.GPA, &res.Passed, &res.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}
