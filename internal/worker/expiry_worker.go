package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/service"
)

const (
	ExpiryBatchSize     = 100
	ExpirySubmitTimeout = 10 * time.Second
	minLockTTL          = 10 * time.Second
)

// releaseLock deletes the lock only if this replica still owns it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ExpiredLister finds in-progress sessions whose time ran out.
type ExpiredLister interface {
	ListExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamSession, error)
}

// Finalizer grades an attempt from its autosaved answers.
type Finalizer interface {
	SubmitPersisted(ctx context.Context, studentID int, examID uuid.UUID) (*service.SubmitOutcome, error)
}

// ExpiryWorker auto-submits attempts left open past their deadline plus
// grace, e.g. when the student closed the tab before time ran out.
type ExpiryWorker struct {
	sessions  ExpiredLister
	finalizer Finalizer
	rdb       *redis.Client
	interval  time.Duration
	grace     time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(sessions ExpiredLister, finalizer Finalizer, rdb *redis.Client, interval, grace time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sessions:  sessions,
		finalizer: finalizer,
		rdb:       rdb,
		interval:  interval,
		grace:     grace,
		log:       log.With().Str("component", "expiry_worker").Logger(),
		now:       time.Now,
	}
}

// Start runs the scan loop until ctx is cancelled. A scan in progress when
// shutdown is requested runs to completion first. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan if this replica wins the scan lock. It
// returns how many attempts were finalized.
func (w *ExpiryWorker) RunOnce(ctx context.Context) int {
	token := uuid.NewString()
	ttl := max(2*w.interval, minLockTTL)

	ok, err := w.rdb.SetNX(ctx, config.WorkerKey.ExpiryScanLock, token, ttl).Result()
	switch {
	case err != nil:
		// Finalize is idempotent; scan without the lock.
		w.log.Warn().Err(err).Msg("Scan lock unavailable, scanning anyway")
	case !ok:
		w.log.Debug().Msg("Another replica holds the scan lock")
		return 0
	default:
		defer func() {
			if err := releaseLock.Run(context.WithoutCancel(ctx), w.rdb, []string{config.WorkerKey.ExpiryScanLock}, token).Err(); err != nil {
				w.log.Warn().Err(err).Msg("Scan lock release failed")
			}
		}()
	}

	return w.scan(ctx)
}

func (w *ExpiryWorker) scan(ctx context.Context) int {
	finalized := 0
	for {
		if ctx.Err() != nil {
			return finalized
		}

		expired, err := w.sessions.ListExpired(ctx, w.now(), w.grace, ExpiryBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("List expired sessions failed")
			}
			return finalized
		}

		failed := 0
		for i := range expired {
			if w.submit(ctx, &expired[i]) {
				finalized++
			} else {
				failed++
			}
		}

		// A short page means the backlog is cleared; a page of failures
		// means storage is struggling and the next tick retries.
		if len(expired) < ExpiryBatchSize || failed == len(expired) {
			break
		}
	}

	if finalized > 0 {
		w.log.Info().Int("count", finalized).Msg("Auto-submitted expired sessions")
	}
	return finalized
}

// submit finalizes one attempt. It is not cut short by shutdown so a
// grading transaction in flight always commits or rolls back cleanly.
func (w *ExpiryWorker) submit(ctx context.Context, s *model.ExamSession) bool {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ExpirySubmitTimeout)
	defer cancel()

	out, err := w.finalizer.SubmitPersisted(sctx, s.StudentID, s.ExamID)
	if err != nil {
		level := w.log.Error()
		if errors.Is(err, service.ErrNotFound) {
			level = w.log.Warn()
		}
		level.Err(err).
			Int("student_id", s.StudentID).
			Str("exam_id", s.ExamID.String()).
			Msg("Auto-submit failed")
		return false
	}

	w.log.Debug().
		Int("student_id", s.StudentID).
		Str("exam_id", s.ExamID.String()).
		Bool("already_completed", out.AlreadyCompleted).
		Msg("Auto-submitted")
	return true
}
