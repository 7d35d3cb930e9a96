package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"bloomence/internal/platform/config"
	"bloomence/internal/platform/metrics"
	"bloomence/pkg/platform/sentinel"
)

// SMTP is the production mailer.
type SMTP struct {
	client  *gomail.Client
	from    string
	metrics *metrics.Metrics
}

func NewSMTP(cfg config.SMTPConfig, m *metrics.Metrics) (*SMTP, error) {
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPortPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("build smtp client: %w", err)
	}
	return &SMTP{client: client, from: cfg.From, metrics: m}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) (Receipt, error) {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return Receipt{}, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return Receipt{}, fmt.Errorf("%w: invalid recipient %q", sentinel.ErrUnavailable, msg.To)
	}
	id := uuid.NewString()
	m.SetMessageIDWithValue(id)
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	if msg.Text != "" {
		m.AddAlternativeString(gomail.TypeTextPlain, msg.Text)
	}

	start := time.Now()
	err := s.client.DialAndSendWithContext(ctx, m)
	if s.metrics != nil {
		s.metrics.MailSendMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: smtp send: %v", sentinel.ErrUnavailable, err)
	}
	return Receipt{ID: id}, nil
}
