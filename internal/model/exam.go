package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusPending   ExamStatus = "PENDING"
	ExamStatusActive    ExamStatus = "ACTIVE"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusClosed    ExamStatus = "CLOSED"
)

// Exam is the read-only exam definition an attempt runs against.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	CourseID        int        `json:"course_id"`
	Title           string     `json:"title"`
	ScheduledStart  time.Time  `json:"scheduled_start"`
	ScheduledEnd    time.Time  `json:"scheduled_end"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    float64    `json:"passing_score"`
	Status          ExamStatus `json:"status"`
}

// Duration is the time a student is allowed for one attempt.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// IsOpen reports whether a new attempt may begin at now. The window is
// inclusive on both ends; a PENDING exam counts as opened once its window starts.
func (e *Exam) IsOpen(now time.Time) bool {
	if e.Status != ExamStatusActive && e.Status != ExamStatusPending {
		return false
	}
	return !now.Before(e.ScheduledStart) && !now.After(e.ScheduledEnd)
}

// ExamPaper is the Redis-cached payload sent to students (no correct answers).
type ExamPaper struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}
