package mail

import (
	"strings"
	"testing"
)

const appURL = "https://bloomence.app"

func TestScoreIcon(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{20, "🌧️"},
		{15, "🌧️"},
		{14, "🌥️"},
		{12, "🌥️"},
		{10, "🌥️"},
		{9, "🌤️"},
		{0, "🌤️"},
	}
	for _, tc := range cases {
		if got := ScoreIcon(tc.score); got != tc.want {
			t.Errorf("ScoreIcon(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestWelcome(t *testing.T) {
	b := Builder{AppURL: appURL}
	msg, err := b.Welcome("a@x.com", "Ann")
	if err != nil {
		t.Fatalf("Welcome: %v", err)
	}
	if msg.Subject != "Welcome — Start your journey with Bloomence" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Welcome, Ann!") {
		t.Errorf("greeting missing from body")
	}
	if !strings.Contains(msg.HTML, appURL) {
		t.Errorf("CTA link missing from body")
	}
}

func TestScoreSummaryBothInstruments(t *testing.T) {
	b := Builder{AppURL: appURL}
	phq, gad := 12, 16
	msg, err := b.ScoreSummary("a@x.com", "Ann", &phq, &gad)
	if err != nil {
		t.Fatalf("ScoreSummary: %v", err)
	}
	if msg.Subject != "Your latest Bloomence scores" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{"PHQ-9", "GAD-7", "🌥️", "🌧️", "<b>12</b>", "<b>16</b>"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestScoreSummarySingleInstrument(t *testing.T) {
	b := Builder{AppURL: appURL}
	phq := 5
	msg, err := b.ScoreSummary("a@x.com", "Ann", &phq, nil)
	if err != nil {
		t.Fatalf("ScoreSummary: %v", err)
	}
	if strings.Contains(msg.HTML, "GAD-7") {
		t.Errorf("absent instrument must be omitted")
	}
	if !strings.Contains(msg.HTML, "🌤️") {
		t.Errorf("low score icon missing")
	}
}

func TestScoreSummaryNoScoresFallsBackToWelcomeBack(t *testing.T) {
	b := Builder{AppURL: appURL}
	msg, err := b.ScoreSummary("a@x.com", "Ann", nil, nil)
	if err != nil {
		t.Fatalf("ScoreSummary: %v", err)
	}
	if msg.Subject != "Welcome back to Bloomence" {
		t.Errorf("expected welcome-back fallback, got %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Welcome back, Ann!") {
		t.Errorf("welcome-back greeting missing")
	}
}

func TestCardEscapesUserContent(t *testing.T) {
	b := Builder{AppURL: appURL}
	msg, err := b.Welcome("a@x.com", `<script>alert(1)</script>`)
	if err != nil {
		t.Fatalf("Welcome: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("user-supplied name must be escaped")
	}
}
