package mail

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var cardTmpl = template.Must(template.ParseFS(templateFS, "templates/card.gohtml"))

type scoreCard struct {
	Label string
	Icon  string
	Score int
}

type cardData struct {
	Title    string
	Subtitle string
	CTALabel string
	AppURL   string
	Scores   []scoreCard
}

// Builder renders the Bloomence card emails. AppURL is the CTA destination.
type Builder struct {
	AppURL string
}

func (b Builder) render(data cardData) (string, error) {
	if data.CTALabel == "" {
		data.CTALabel = "Open Bloomence"
	}
	data.AppURL = b.AppURL
	var sb strings.Builder
	if err := cardTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render card email: %w", err)
	}
	return sb.String(), nil
}

// Welcome is the one-time email on account creation.
func (b Builder) Welcome(to, name string) (Message, error) {
	html, err := b.render(cardData{
		Title:    fmt.Sprintf("Welcome, %s!", name),
		Subtitle: "You're all set — your account was created successfully. Start your journey with Bloomence by taking a quick check-in.",
		CTALabel: "Start your journey",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Welcome — Start your journey with Bloomence",
		HTML:    html,
	}, nil
}

// FirstLogin is the one-time email on the first successful login.
func (b Builder) FirstLogin(to, name string) (Message, error) {
	html, err := b.render(cardData{
		Title:    fmt.Sprintf("You successfully logged in, %s!", name),
		Subtitle: "Welcome aboard. Keep your streak going with a quick check-in.",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Login successful — Welcome to Bloomence",
		HTML:    html,
	}, nil
}

// ScoreSummary is the throttled login email when the user has recent
// check-in scores. Nil scores omit the card for that instrument.
func (b Builder) ScoreSummary(to, name string, phq, gad *int) (Message, error) {
	var scores []scoreCard
	if phq != nil {
		scores = append(scores, scoreCard{Label: "PHQ-9", Icon: ScoreIcon(*phq), Score: *phq})
	}
	if gad != nil {
		scores = append(scores, scoreCard{Label: "GAD-7", Icon: ScoreIcon(*gad), Score: *gad})
	}
	if len(scores) == 0 {
		return b.WelcomeBack(to, name)
	}
	html, err := b.render(cardData{
		Title:    "Your latest scores",
		Subtitle: "Here is a quick summary from your recent check-ins.",
		Scores:   scores,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Your latest Bloomence scores",
		HTML:    html,
	}, nil
}

// WelcomeBack is the throttled login email when no scores exist yet.
func (b Builder) WelcomeBack(to, name string) (Message, error) {
	html, err := b.render(cardData{
		Title:    fmt.Sprintf("Welcome back, %s!", name),
		Subtitle: "Great to see you again. Continue your journey with a quick check-in.",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Welcome back to Bloomence",
		HTML:    html,
	}, nil
}

// Reminder is the dormant-user email sent by the scheduled sweep.
func (b Builder) Reminder(to, name string) (Message, error) {
	html, err := b.render(cardData{
		Title:    fmt.Sprintf("We miss you, %s", name),
		Subtitle: "It has been a while since your last check-in. A few minutes is all it takes to keep track of how you're doing.",
		CTALabel: "Take a check-in",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "A gentle check-in reminder from Bloomence",
		HTML:    html,
	}, nil
}

// ScoreIcon maps a questionnaire score onto its weather indicator.
func ScoreIcon(score int) string {
	switch {
	case score >= 15:
		return "🌧️"
	case score >= 10:
		return "🌥️"
	default:
		return "🌤️"
	}
}
