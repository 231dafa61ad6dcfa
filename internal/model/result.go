package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResult is the immutable outcome of one finalized attempt.
type ExamResult struct {
	ID             uuid.UUID `json:"id"`
	ExamID         uuid.UUID `json:"exam_id"`
	StudentID      int       `json:"student_id"`
	TotalQuestions int       `json:"total_questions"`
	CorrectCount   int       `json:"correct_count"`
	Score          int       `json:"score"`
	TotalMarks     int       `json:"total_marks"`
	Percentage     float64   `json:"percentage"`
	Grade          string    `json:"grade"`
	GPA            float64   `json:"gpa"`
	Passed         bool      `json:"passed"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
