package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// AnswerRepository handles student answer data access.
type AnswerRepository struct {
	db DBTX
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(db DBTX) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// Upsert creates or overwrites the answer in one statement, so two
// near-simultaneous saves of the same question cannot lose an update.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.AnswerRecord) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()
		 RETURNING updated_at`,
		a.ExamID, a.StudentID, a.QuestionID, a.Answer,
	).Scan(&a.UpdatedAt)
}

// ListByAttempt returns all saved answers of one attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, examID uuid.UUID, studentID int) ([]model.AnswerRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT exam_id, student_id, question_id, answer, updated_at, is_correct, points_awarded
		 FROM student_answers
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.AnswerRecord
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.ExamID, &a.StudentID, &a.QuestionID, &a.Answer, &a.UpdatedAt, &a.IsCorrect, &a.PointsAwarded); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// DeleteByAttempt wipes every answer of one attempt.
func (r *AnswerRepository) DeleteByAttempt(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM student_answers WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID)
	return err
}

// InsertGraded bulk-inserts scored answers using UNNEST.
func (r *AnswerRepository) InsertGraded(ctx context.Context, answers []model.AnswerRecord) error {
	if len(answers) == 0 {
		return nil
	}

	n := len(answers)
	examIDs := make([]uuid.UUID, n)
	students := make([]int, n)
	questionIDs := make([]uuid.UUID, n)
	texts := make([]string, n)
	correct := make([]bool, n)
	points := make([]int, n)

	for i, a := range answers {
		examIDs[i] = a.ExamID
		students[i] = a.StudentID
		questionIDs[i] = a.QuestionID
		texts[i] = a.Answer
		if a.IsCorrect != nil {
			correct[i] = *a.IsCorrect
		}
		if a.PointsAwarded != nil {
			points[i] = *a.PointsAwarded
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer, is_correct, points_awarded)
		 SELECT u.exam_id, u.student_id, u.question_id, u.answer, u.is_correct, u.points_awarded
		 FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::uuid[],
			$4::text[],
			$5::bool[],
			$6::int[]
		 ) AS u (exam_id, student_id, question_id, answer, is_correct, points_awarded)`,
		examIDs, students, questionIDs, texts, correct, points,
	)
	return err
}
