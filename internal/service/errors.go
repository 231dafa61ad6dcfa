package service

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is; wrapped variants carry
// detail about which resource or rule failed.
var (
	// Authorization
	ErrUnauthorized = errors.New("resource does not belong to caller")

	// PreconditionFailed
	ErrExamNotOpen      = errors.New("exam is not open")
	ErrNotEnrolled      = errors.New("student is not enrolled in the exam's course")
	ErrAlreadyCompleted = errors.New("exam attempt already completed")
	ErrSessionNotActive = errors.New("exam session is not active")

	// NotFound
	ErrNotFound = errors.New("not found")

	// Invariant: stored data breaks a rule it must hold. Retrying cannot help.
	ErrInvariant = errors.New("stored data is invalid")

	// Transient: storage unavailable, safe to retry.
	ErrTransient = errors.New("storage temporarily unavailable")
)

var (
	ErrExamNotFound     = fmt.Errorf("exam %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("exam session %w", ErrNotFound)
	ErrResultNotFound   = fmt.Errorf("exam result %w", ErrNotFound)
)

// storageErr marks a failed store call as retryable while keeping the cause.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// IsPrecondition reports whether err is one of the recoverable precondition failures.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrExamNotOpen) ||
		errors.Is(err, ErrNotEnrolled) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrSessionNotActive)
}
