package service

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

// Deadline is the server-side end of the attempt: start plus exam duration.
func Deadline(s *model.ExamSession, exam *model.Exam) time.Time {
	return s.StartedAt.Add(exam.Duration())
}

// ServerRemaining recomputes the seconds left purely from the start time.
func ServerRemaining(s *model.ExamSession, exam *model.Exam, now time.Time) int {
	left := Deadline(s, exam).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// Remaining is the countdown shown to the student. A persisted client value
// is honoured but can only shorten the server-computed time, never extend it.
func Remaining(s *model.ExamSession, exam *model.Exam, now time.Time) int {
	server := ServerRemaining(s, exam, now)
	if s.TimeRemaining == nil {
		return server
	}
	stored := max(0, *s.TimeRemaining)
	return min(stored, server)
}

// Expired reports whether the attempt is past its deadline plus grace.
func Expired(s *model.ExamSession, exam *model.Exam, now time.Time, grace time.Duration) bool {
	return now.After(Deadline(s, exam).Add(grace))
}
