// Package sweep periodically finds users who have gone quiet and sends them
// a reminder email. It is the only sender in the pipeline not triggered by a
// request; everything else reacts to register/login/seen calls.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"bloomence/internal/notify/mail"
	"bloomence/internal/notify/models"
	"bloomence/internal/platform/metrics"
	"bloomence/pkg/email"
)

// Store is the slice of the user store the sweeper needs.
type Store interface {
	ListDormant(ctx context.Context, olderThan time.Time, limit int) ([]models.User, error)
	ClaimDormantReminder(ctx context.Context, uid string, now time.Time, window time.Duration) (bool, error)
}

// Condition decides whether a listed user should receive a reminder now.
// The default accepts everyone the store listed; deployments can tighten it
// without touching the sweep loop.
type Condition func(u models.User, now time.Time) bool

// Config bounds one sweep pass.
type Config struct {
	// Interval is the pause between passes.
	Interval time.Duration
	// DormantAfter is how long since lastSeen counts as dormant. It also
	// throttles repeat reminders to the same user.
	DormantAfter time.Duration
	// BatchLimit caps users processed per pass.
	BatchLimit int
}

// Sweeper runs the dormant-user reminder loop.
type Sweeper struct {
	logger    *slog.Logger
	store     Store
	mailer    mail.Mailer
	builder   mail.Builder
	cfg       Config
	condition Condition
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	// running guards against overlapping passes when a pass outlasts the
	// interval.
	running sync.Mutex
}

// Option configures optional collaborators.
type Option func(*Sweeper)

func WithCondition(c Condition) Option {
	return func(s *Sweeper) { s.condition = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(store Store, mailer mail.Mailer, builder mail.Builder, cfg Config, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		logger:    logger,
		store:     store,
		mailer:    mailer,
		builder:   builder,
		cfg:       cfg,
		condition: func(models.User, time.Time) bool { return true },
		tracer:    otel.Tracer("bloomence/sweep"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on the configured interval until ctx is cancelled. The first
// pass runs immediately.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.sweep(ctx, now)
		}
	}
}

// sweep performs one pass. Per-user failures are logged and skipped so one
// bad address never stalls the rest of the batch.
func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	if !s.running.TryLock() {
		s.logger.Warn("sweep pass still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, "sweep.pass")
	defer span.End()

	users, err := s.store.ListDormant(ctx, now.Add(-s.cfg.DormantAfter), s.cfg.BatchLimit)
	if err != nil {
		s.logger.Error("list dormant users failed", "error", err)
		return
	}

	sent := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		if s.remind(ctx, u, now) {
			sent++
		}
	}

	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}
	if len(users) > 0 || sent > 0 {
		s.logger.Info("sweep pass complete", "listed", len(users), "reminded", sent)
	}
}

func (s *Sweeper) remind(ctx context.Context, u models.User, now time.Time) bool {
	if !u.PrefEnabled(models.PrefReminderEmails) {
		return false
	}
	if !s.condition(u, now) {
		return false
	}

	// The claim stamps lastReminderAt, so a user reminded by a concurrent
	// instance or a recent pass is skipped here.
	claimed, err := s.store.ClaimDormantReminder(ctx, u.UID, now, s.cfg.DormantAfter)
	if err != nil {
		s.logger.Warn("claim dormant reminder failed", "error", err, "uid", u.UID)
		return false
	}
	if !claimed {
		return false
	}

	msg, err := s.builder.Reminder(u.Email, email.GreetingName(u.Name, u.Email))
	if err != nil {
		s.logger.Warn("build reminder email failed", "error", err, "uid", u.UID)
		return false
	}
	if _, err := s.mailer.Send(ctx, msg); err != nil {
		if s.metrics != nil {
			s.metrics.EmailFailed(models.EmailKindReminder)
		}
		s.logger.Warn("reminder email send failed", "error", err, "uid", u.UID)
		return false
	}

	if s.metrics != nil {
		s.metrics.EmailSent(models.EmailKindReminder)
		s.metrics.SweepReminders.Inc()
	}
	return true
}
