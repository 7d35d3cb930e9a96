package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bloomence/internal/notify/mail"
	"bloomence/internal/notify/models"
	"bloomence/internal/notify/store/result"
	"bloomence/internal/notify/store/user"
	dErrors "bloomence/pkg/domain-errors"
	"bloomence/pkg/requestcontext"
)

// fakeMailer records sends and can be told to fail.
type fakeMailer struct {
	mu    sync.Mutex
	sent  []mail.Message
	fail  bool
	calls int
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) (mail.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return mail.Receipt{}, errors.New("smtp send: connection refused")
	}
	f.sent = append(f.sent, msg)
	return mail.Receipt{ID: "msg-1"}, nil
}

func (f *fakeMailer) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.To
	}
	return out
}

type emittedEvent struct {
	UID     string
	Event   string
	Payload any
}

// fakeEmitter records realtime emits.
type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (f *fakeEmitter) Emit(_ context.Context, uid, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{UID: uid, Event: event, Payload: payload})
	return nil
}

func (f *fakeEmitter) named(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	users   *user.Memory
	results *result.Memory
	mailer  *fakeMailer
	hub     *fakeEmitter
	svc     *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.users = user.NewMemory()
	s.results = result.NewMemory()
	s.mailer = &fakeMailer{}
	s.hub = &fakeEmitter{}
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.svc = New(s.users, s.results, s.mailer, mail.Builder{AppURL: "https://bloomence.app"},
		WithLogger(logger),
		WithHub(s.hub),
	)
}

// ctx pins request time so throttle windows are deterministic.
func (s *ServiceSuite) ctx(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}

func (s *ServiceSuite) register(uid string) {
	msg, err := s.svc.Register(s.ctx(s.now), uid, "a@x.com", "Ann")
	s.Require().NoError(err)
	s.Require().Equal("Welcome email sent", msg)
}

// =============================================================================
// Register
// =============================================================================

func (s *ServiceSuite) TestRegisterNewUser() {
	msg, err := s.svc.Register(s.ctx(s.now), "U1", "a@x.com", "Ann")
	s.Require().NoError(err)
	s.Equal("Welcome email sent", msg)

	u, err := s.users.FindByUID(context.Background(), "U1")
	s.Require().NoError(err)
	s.Equal("a@x.com", u.Email)
	s.True(u.RegisteredAt.Equal(s.now))
	s.True(u.LastSeen.Equal(s.now))

	s.Equal([]string{"a@x.com"}, s.mailer.sentTo())
	s.Contains(s.mailer.sent[0].Subject, "Welcome")

	reg := s.hub.named(models.EventRegistered)
	s.Require().Len(reg, 1)
	s.Equal(models.RegisteredPayload{Email: "a@x.com", Name: "Ann", Existed: false}, reg[0].Payload)
	sent := s.hub.named(models.EventEmailSent)
	s.Require().Len(sent, 1)
	s.Equal(models.EmailSentPayload{Kind: models.EmailKindRegister, To: "a@x.com"}, sent[0].Payload)
}

func (s *ServiceSuite) TestRegisterExistingUser() {
	s.register("U1")
	s.mailer.sent = nil
	s.hub.events = nil

	msg, err := s.svc.Register(s.ctx(s.now.Add(time.Hour)), "U1", "new@x.com", "Annie")
	s.Require().NoError(err)
	s.Equal("Profile updated", msg)

	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.Equal("new@x.com", u.Email)
	s.Equal("Annie", u.Name)

	s.Empty(s.mailer.sent, "no welcome email for an existing user")
	reg := s.hub.named(models.EventRegistered)
	s.Require().Len(reg, 1)
	s.Equal(models.RegisteredPayload{Email: "new@x.com", Name: "Annie", Existed: true}, reg[0].Payload)
}

func (s *ServiceSuite) TestRegisterMissingEmail() {
	_, err := s.svc.Register(s.ctx(s.now), "U1", "", "Ann")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	_, ferr := s.users.FindByUID(context.Background(), "U1")
	s.Error(ferr, "no user must be created")
}

func (s *ServiceSuite) TestRegisterSendFailureKeepsUser() {
	s.mailer.fail = true
	msg, err := s.svc.Register(s.ctx(s.now), "U1", "a@x.com", "Ann")
	s.Require().NoError(err, "a lost welcome email must not fail registration")
	s.Equal("Profile created", msg)

	_, ferr := s.users.FindByUID(context.Background(), "U1")
	s.NoError(ferr, "user stays created")
	s.Empty(s.hub.named(models.EventEmailSent), "no email:sent without a successful send")
	s.Len(s.hub.named(models.EventRegistered), 1)
}

// =============================================================================
// Login
// =============================================================================

func (s *ServiceSuite) TestLoginUnknownUser() {
	_, err := s.svc.Login(s.ctx(s.now), "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Zero(s.mailer.calls, "no email dispatch for unknown users")
	s.Empty(s.hub.events, "no emits for unknown users")
}

func (s *ServiceSuite) TestLoginFirstTime() {
	s.register("U1")
	s.mailer.sent = nil
	s.hub.events = nil

	at := s.now.Add(time.Hour)
	msg, err := s.svc.Login(s.ctx(at), "U1")
	s.Require().NoError(err)
	s.Equal("Login recorded", msg)

	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.True(u.LastSeen.Equal(at))
	s.Require().NotNil(u.FirstLoginEmailedAt)
	s.Require().NotNil(u.LastScoreEmailAt)

	// First-login email plus welcome-back (no scores yet).
	s.Len(s.mailer.sent, 2)
	s.Contains(s.mailer.sent[0].Subject, "Login successful")
	s.Equal("Welcome back to Bloomence", s.mailer.sent[1].Subject)

	logins := s.hub.named(models.EventAuthLogin)
	s.Require().Len(logins, 1)
	s.Equal(models.AuthLoginPayload{When: at.UnixMilli()}, logins[0].Payload)
}

func (s *ServiceSuite) TestFirstLoginEmailNeverRepeats() {
	s.register("U1")
	_, err := s.svc.Login(s.ctx(s.now.Add(time.Hour)), "U1")
	s.Require().NoError(err)
	s.mailer.sent = nil

	// Second login two days later: score window is due again but the
	// first-login sentinel must hold.
	_, err = s.svc.Login(s.ctx(s.now.Add(49*time.Hour)), "U1")
	s.Require().NoError(err)
	for _, m := range s.mailer.sent {
		s.NotContains(m.Subject, "Login successful")
	}
}

func (s *ServiceSuite) TestFirstLoginEmailRespectsPreference() {
	s.register("U1")
	err := s.users.SetEmailPrefs(context.Background(), "U1", map[string]bool{models.PrefLoginEmails: false})
	s.Require().NoError(err)
	s.mailer.sent = nil

	_, err = s.svc.Login(s.ctx(s.now.Add(time.Hour)), "U1")
	s.Require().NoError(err)
	for _, m := range s.mailer.sent {
		s.NotContains(m.Subject, "Login successful")
	}

	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.Nil(u.FirstLoginEmailedAt, "disabled preference must not consume the sentinel")
}

func (s *ServiceSuite) TestScoreEmailThrottled() {
	s.register("U1")
	_, err := s.svc.Login(s.ctx(s.now.Add(time.Hour)), "U1")
	s.Require().NoError(err)
	s.mailer.sent = nil
	s.hub.events = nil

	// 10h later: inside the 24h window.
	at := s.now.Add(11 * time.Hour)
	_, err = s.svc.Login(s.ctx(at), "U1")
	s.Require().NoError(err)

	s.Empty(s.mailer.sent, "throttle not elapsed, no score email")
	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.True(u.LastSeen.Equal(at), "lastSeen still updated")
	s.Len(s.hub.named(models.EventAuthLogin), 1, "auth:login still emitted")
}

func (s *ServiceSuite) TestScoreEmailAfterWindowWithScores() {
	s.register("U1")
	firstLogin := s.now.Add(time.Hour)
	_, err := s.svc.Login(s.ctx(firstLogin), "U1")
	s.Require().NoError(err)

	s.results.Add(models.Result{UID: "U1", QuestionnaireType: models.QuestionnairePHQ9, TotalScore: 12, CreatedAt: s.now})
	s.mailer.sent = nil
	s.hub.events = nil

	// 30h after the first score email: due again.
	at := firstLogin.Add(30 * time.Hour)
	_, err = s.svc.Login(s.ctx(at), "U1")
	s.Require().NoError(err)

	s.Require().Len(s.mailer.sent, 1)
	s.Equal("Your latest Bloomence scores", s.mailer.sent[0].Subject)
	s.Contains(s.mailer.sent[0].HTML, "🌥️")
	s.Contains(s.mailer.sent[0].HTML, "<b>12</b>")

	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.Require().NotNil(u.LastScoreEmailAt)
	s.True(u.LastScoreEmailAt.Equal(at), "throttle stamp updated to now")

	sent := s.hub.named(models.EventEmailSent)
	s.Require().Len(sent, 1)
	s.Equal(models.EmailSentPayload{Kind: models.EmailKindLoginScores, To: "a@x.com"}, sent[0].Payload)
}

func (s *ServiceSuite) TestScoreEmailFailureReleasesWindow() {
	s.register("U1")
	firstLogin := s.now.Add(time.Hour)
	_, err := s.svc.Login(s.ctx(firstLogin), "U1")
	s.Require().NoError(err)

	s.mailer.fail = true
	at := firstLogin.Add(30 * time.Hour)
	_, err = s.svc.Login(s.ctx(at), "U1")
	s.Require().NoError(err, "mail failure is non-fatal for login")

	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.Require().NotNil(u.LastScoreEmailAt)
	s.True(u.LastScoreEmailAt.Equal(firstLogin), "stamp only sticks on send success")

	// Transport recovers: the very next login may send immediately.
	s.mailer.fail = false
	s.mailer.sent = nil
	_, err = s.svc.Login(s.ctx(at.Add(time.Minute)), "U1")
	s.Require().NoError(err)
	s.Len(s.mailer.sent, 1)
}

// =============================================================================
// Seen / SendTest
// =============================================================================

func (s *ServiceSuite) TestSeen() {
	s.register("U1")
	s.mailer.sent = nil
	s.hub.events = nil

	at := s.now.Add(2 * time.Hour)
	msg, err := s.svc.Seen(s.ctx(at), "U1")
	s.Require().NoError(err)
	s.Equal("Seen recorded", msg)

	u, _ := s.users.FindByUID(context.Background(), "U1")
	s.True(u.LastSeen.Equal(at))
	s.Empty(s.mailer.sent)
	s.Empty(s.hub.events)
}

func (s *ServiceSuite) TestSeenUnknownUser() {
	_, err := s.svc.Seen(s.ctx(s.now), "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSendTestDefaults() {
	id, err := s.svc.SendTest(s.ctx(s.now), "U1", TestRequest{To: "q@y.com"})
	s.Require().NoError(err)
	s.Equal("msg-1", id)

	s.Require().Len(s.mailer.sent, 1)
	s.Equal("Bloomence test email", s.mailer.sent[0].Subject)
	s.Contains(s.mailer.sent[0].HTML, "/api/notifications/test")

	sent := s.hub.named(models.EventEmailSent)
	s.Require().Len(sent, 1)
	s.Equal(models.EmailSentPayload{Kind: models.EmailKindTest, To: "q@y.com"}, sent[0].Payload)
}

func (s *ServiceSuite) TestSendTestMissingTo() {
	_, err := s.svc.SendTest(s.ctx(s.now), "U1", TestRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestSendTestTransportFailurePropagates() {
	s.mailer.fail = true
	_, err := s.svc.SendTest(s.ctx(s.now), "U1", TestRequest{To: "q@y.com"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Empty(s.hub.events, "no realtime emit on a failed test send")
}
