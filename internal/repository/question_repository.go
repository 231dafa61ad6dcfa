package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-engine/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	db DBTX
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db DBTX) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, exam_id, question_text, question_type, options, correct_answer, points, order_num`

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// GetByID retrieves one question, scoped to its exam.
func (r *QuestionRepository) GetByID(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE exam_id = $1 AND id = $2`, examID, questionID,
	)
	return scanQuestion(row)
}

// scanQuestion reads one row. Broken type or option data yields a
// model.Malformed kind rather than an error.
func scanQuestion(row pgx.Row) (*model.Question, error) {
	var (
		q       model.Question
		qType   model.QuestionType
		options json.RawMessage
	)
	if err := row.Scan(&q.ID, &q.ExamID, &q.QuestionText, &qType, &options, &q.CorrectAnswer, &q.Points, &q.OrderNum); err != nil {
		return nil, err
	}
	q.Kind = model.KindOf(qType, options)
	return &q, nil
}
