// Package service orchestrates the notification pipeline: which email (if
// any) a register/login/seen event triggers, the idempotency and throttling
// rules around those sends, and the realtime fan-out afterwards.
//
// Email sends are best-effort side effects. The store write is the contract:
// a dispatch failure is logged and never rolls back or fails the already
// committed profile/timestamp update. At-most-once and windowed sends are
// enforced by store-level conditional claims, not read-then-write.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"bloomence/internal/notify/mail"
	"bloomence/internal/notify/models"
	"bloomence/internal/platform/metrics"
	dErrors "bloomence/pkg/domain-errors"
	"bloomence/pkg/email"
	"bloomence/pkg/platform/sentinel"
	"bloomence/pkg/requestcontext"
)

// UserStore is the persisted account state the pipeline coordinates through.
type UserStore interface {
	Create(ctx context.Context, u models.User) error
	FindByUID(ctx context.Context, uid string) (*models.User, error)
	UpdateProfile(ctx context.Context, uid, email, name string) error
	TouchLastSeen(ctx context.Context, uid string, now time.Time) (*models.User, error)
	ClaimFirstLoginEmail(ctx context.Context, uid string, now time.Time) (bool, error)
	ClaimScoreEmailWindow(ctx context.Context, uid string, now time.Time, window time.Duration) (bool, *time.Time, error)
	ReleaseScoreEmailWindow(ctx context.Context, uid string, prev *time.Time, claimedAt time.Time) error
}

// ResultStore reads questionnaire submissions.
type ResultStore interface {
	LatestByType(ctx context.Context, uid, questionnaireType string) (*models.Result, error)
}

// Emitter pushes an event to the user's connected realtime sessions.
type Emitter interface {
	Emit(ctx context.Context, uid, event string, payload any) error
}

// Publisher mirrors notification events onto the event stream.
type Publisher interface {
	Publish(ctx context.Context, uid, event string, payload any) error
}

const defaultScoreWindow = 24 * time.Hour

// Service is the notification orchestrator.
type Service struct {
	logger      *slog.Logger
	users       UserStore
	results     ResultStore
	mailer      mail.Mailer
	builder     mail.Builder
	hub         Emitter
	stream      Publisher
	metrics     *metrics.Metrics
	scoreWindow time.Duration
	tracer      trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithHub wires the realtime fan-out. A nil hub degrades every emit to a
// no-op.
func WithHub(hub Emitter) Option {
	return func(s *Service) { s.hub = hub }
}

// WithStream wires the notification event stream.
func WithStream(p Publisher) Option {
	return func(s *Service) { s.stream = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithScoreWindow overrides the score-email throttle window.
func WithScoreWindow(d time.Duration) Option {
	return func(s *Service) { s.scoreWindow = d }
}

func New(users UserStore, results ResultStore, mailer mail.Mailer, builder mail.Builder, opts ...Option) *Service {
	s := &Service{
		logger:      slog.Default(),
		users:       users,
		results:     results,
		mailer:      mailer,
		builder:     builder,
		scoreWindow: defaultScoreWindow,
		tracer:      otel.Tracer("bloomence/notify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates or refreshes the user's profile. A brand new account also
// gets the one-time welcome email; an existing one only gets the profile
// update. Returns the client-facing message.
func (s *Service) Register(ctx context.Context, uid, address, name string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "notify.Register")
	defer span.End()

	if address == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "email required")
	}

	now := requestcontext.Now(ctx)

	_, err := s.users.FindByUID(ctx, uid)
	switch {
	case err == nil:
		return s.registerExisting(ctx, uid, address, name)
	case errors.Is(err, sentinel.ErrNotFound):
		// Fall through to create.
	default:
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to process registration")
	}

	user := models.User{
		UID:          uid,
		Email:        address,
		Name:         name,
		RegisteredAt: now,
		LastSeen:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent register won the create; behave as the existing path.
			return s.registerExisting(ctx, uid, address, name)
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to process registration")
	}

	msg, err := s.builder.Welcome(address, email.GreetingName(name, address))
	if err != nil {
		s.logWarn(ctx, "build welcome email", err, uid)
		return "Profile created", nil
	}
	if !s.send(ctx, models.EmailKindRegister, msg, uid) {
		// User stays created; the failed send is a logged partial failure.
		s.emit(ctx, uid, models.EventRegistered, models.RegisteredPayload{Email: address, Name: name, Existed: false})
		return "Profile created", nil
	}

	s.emit(ctx, uid, models.EventEmailSent, models.EmailSentPayload{Kind: models.EmailKindRegister, To: address})
	s.emit(ctx, uid, models.EventRegistered, models.RegisteredPayload{Email: address, Name: name, Existed: false})
	return "Welcome email sent", nil
}

func (s *Service) registerExisting(ctx context.Context, uid, address, name string) (string, error) {
	if err := s.users.UpdateProfile(ctx, uid, address, name); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to process registration")
	}
	s.emit(ctx, uid, models.EventRegistered, models.RegisteredPayload{Email: address, Name: name, Existed: true})
	return "Profile updated", nil
}

// Login records activity and then, independently, considers the one-time
// first-login email and the throttled score-summary/welcome-back email. The
// lastSeen update is unconditional; both email branches are best effort.
func (s *Service) Login(ctx context.Context, uid string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "notify.Login")
	defer span.End()

	now := requestcontext.Now(ctx)

	user, err := s.users.TouchLastSeen(ctx, uid, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login")
	}

	s.sendFirstLoginEmail(ctx, user, now)
	s.sendScoreEmail(ctx, user, now)

	s.emit(ctx, uid, models.EventAuthLogin, models.AuthLoginPayload{When: now.UnixMilli()})
	return "Login recorded", nil
}

// Seen records activity only. No emails, no realtime emits.
func (s *Service) Seen(ctx context.Context, uid string) (string, error) {
	now := requestcontext.Now(ctx)
	if _, err := s.users.TouchLastSeen(ctx, uid, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to record seen")
	}
	return "Seen recorded", nil
}

// TestRequest is the diagnostic send-an-arbitrary-email request.
type TestRequest struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SendTest sends a diagnostic email, bypassing store lookups. Unlike every
// other call site, a transport failure here propagates to the caller.
func (s *Service) SendTest(ctx context.Context, uid string, req TestRequest) (string, error) {
	if req.To == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "to is required")
	}
	if req.Subject == "" {
		req.Subject = "Bloomence test email"
	}
	if req.HTML == "" {
		req.HTML = "<b>Hello from Bloomence /api/notifications/test</b>"
	}

	receipt, err := s.mailer.Send(ctx, mail.Message{To: req.To, Subject: req.Subject, HTML: req.HTML, Text: req.Text})
	if err != nil {
		if s.metrics != nil {
			s.metrics.EmailFailed(models.EmailKindTest)
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to send test email")
	}
	if s.metrics != nil {
		s.metrics.EmailSent(models.EmailKindTest)
	}
	s.emit(ctx, uid, models.EventEmailSent, models.EmailSentPayload{Kind: models.EmailKindTest, To: req.To})
	return receipt.ID, nil
}

// sendFirstLoginEmail sends the one-time first-login email when the user has
// not disabled login emails and the sentinel is still unset. The claim is
// consumed even when the send fails: this email is never retried.
func (s *Service) sendFirstLoginEmail(ctx context.Context, user *models.User, now time.Time) {
	if !user.PrefEnabled(models.PrefLoginEmails) {
		return
	}
	claimed, err := s.users.ClaimFirstLoginEmail(ctx, user.UID, now)
	if err != nil {
		s.logWarn(ctx, "claim first-login email", err, user.UID)
		return
	}
	if !claimed {
		return
	}

	msg, err := s.builder.FirstLogin(user.Email, email.GreetingName(user.Name, user.Email))
	if err != nil {
		s.logWarn(ctx, "build first-login email", err, user.UID)
		return
	}
	if s.send(ctx, models.EmailKindFirstLogin, msg, user.UID) {
		s.emit(ctx, user.UID, models.EventEmailSent, models.EmailSentPayload{Kind: models.EmailKindFirstLogin, To: user.Email})
	}
}

// sendScoreEmail sends the throttled score-summary/welcome-back email when
// the window has elapsed. The window is claimed before the send and released
// when the send fails, so the stamp only sticks on success.
func (s *Service) sendScoreEmail(ctx context.Context, user *models.User, now time.Time) {
	if !user.PrefEnabled(models.PrefScoreEmails) {
		return
	}
	claimed, prev, err := s.users.ClaimScoreEmailWindow(ctx, user.UID, now, s.scoreWindow)
	if err != nil {
		s.logWarn(ctx, "claim score-email window", err, user.UID)
		return
	}
	if !claimed {
		return
	}

	phq := s.latestScore(ctx, user.UID, models.QuestionnairePHQ9)
	gad := s.latestScore(ctx, user.UID, models.QuestionnaireGAD7)

	kind := models.EmailKindWelcomeBack
	if phq != nil || gad != nil {
		kind = models.EmailKindLoginScores
	}

	msg, err := s.builder.ScoreSummary(user.Email, email.GreetingName(user.Name, user.Email), phq, gad)
	if err != nil {
		s.logWarn(ctx, "build score email", err, user.UID)
		s.releaseScoreWindow(ctx, user.UID, prev, now)
		return
	}
	if !s.send(ctx, kind, msg, user.UID) {
		s.releaseScoreWindow(ctx, user.UID, prev, now)
		return
	}
	s.emit(ctx, user.UID, models.EventEmailSent, models.EmailSentPayload{Kind: kind, To: user.Email})
}

func (s *Service) releaseScoreWindow(ctx context.Context, uid string, prev *time.Time, claimedAt time.Time) {
	if err := s.users.ReleaseScoreEmailWindow(ctx, uid, prev, claimedAt); err != nil {
		s.logWarn(ctx, "release score-email window", err, uid)
	}
}

// latestScore fetches the most recent score for an instrument. Absence and
// store failures both read as "no score"; a read failure must not block the
// rest of the login flow.
func (s *Service) latestScore(ctx context.Context, uid, questionnaireType string) *int {
	r, err := s.results.LatestByType(ctx, uid, questionnaireType)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logWarn(ctx, "fetch latest result", err, uid)
		}
		return nil
	}
	score := r.TotalScore
	return &score
}

// send dispatches msg and reports success. Transport failures are downgraded
// to logged warnings here; the caller decides what a lost send means.
func (s *Service) send(ctx context.Context, kind string, msg mail.Message, uid string) bool {
	ctx, span := s.tracer.Start(ctx, "notify.send")
	defer span.End()

	if _, err := s.mailer.Send(ctx, msg); err != nil {
		if s.metrics != nil {
			s.metrics.EmailFailed(kind)
		}
		s.logger.WarnContext(ctx, "email send failed",
			"kind", kind,
			"error", err,
			"uid", uid,
			"request_id", requestcontext.RequestID(ctx),
		)
		return false
	}
	if s.metrics != nil {
		s.metrics.EmailSent(kind)
	}
	return true
}

// emit fans the event out to the user's realtime sessions and mirrors it to
// the event stream. Both are best effort: failures are logged, never
// returned.
func (s *Service) emit(ctx context.Context, uid, event string, payload any) {
	if s.hub != nil {
		if err := s.hub.Emit(ctx, uid, event, payload); err != nil {
			s.logWarn(ctx, "realtime emit", err, uid)
		} else if s.metrics != nil {
			s.metrics.RealtimeEmits.Inc()
		}
	}
	if s.stream != nil {
		if err := s.stream.Publish(ctx, uid, event, payload); err != nil {
			s.logWarn(ctx, "event stream publish", err, uid)
		}
	}
}

func (s *Service) logWarn(ctx context.Context, what string, err error, uid string) {
	s.logger.WarnContext(ctx, what+" failed",
		"error", err,
		"uid", uid,
		"request_id", requestcontext.RequestID(ctx),
	)
}
