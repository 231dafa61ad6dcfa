package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is the latest saved answer for one question of one attempt.
// Answer holds the resolved text, not the raw key the client sent.
type AnswerRecord struct {
	ExamID        uuid.UUID `json:"exam_id"`
	StudentID     int       `json:"student_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	Answer        string    `json:"answer"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsCorrect     *bool     `json:"is_correct,omitempty"`
	PointsAwarded *int      `json:"points_awarded,omitempty"`
}

// SaveAnswerRequest is the autosave payload for a single question.
type SaveAnswerRequest struct {
	Answer string `json:"answer" binding:"max=5000"`
}

// SubmitRequest carries the final answers keyed by question id.
type SubmitRequest struct {
	Answers map[string]string `json:"answers" binding:"omitempty,uuid_keys"`
}
