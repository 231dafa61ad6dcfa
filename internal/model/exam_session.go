package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. A missing row is the
// not-started state.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ExamSession represents a student's exam attempt.
type ExamSession struct {
	ID         uuid.UUID  `json:"id"`
	ExamID     uuid.UUID  `json:"exam_id"`
	StudentID  int        `json:"student_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// TimeRemaining is the last persisted countdown in seconds. Nil means
	// derive it from StartedAt and the exam duration.
	TimeRemaining *int          `json:"time_remaining,omitempty"`
	Status        SessionStatus `json:"status"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsCompleted reports whether the session reached its terminal state.
func (s *ExamSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// PersistTimeRequest is the heartbeat payload carrying the client countdown.
type PersistTimeRequest struct {
	Seconds *int `json:"seconds" binding:"required,min=0"`
}
