// Package models holds the persisted and wire types of the notification
// pipeline.
package models

import "time"

// Email preference categories. Absent keys default to enabled; only an
// explicit false disables a category.
const (
	PrefLoginEmails    = "loginEmails"
	PrefScoreEmails    = "scoreEmails"
	PrefReminderEmails = "reminderEmails"
)

// User is the pipeline's view of a registered account. UID is the identity
// provider's subject id: unique and immutable once set.
type User struct {
	UID          string          `bson:"firebaseUid" json:"uid"`
	Email        string          `bson:"email" json:"email"`
	Name         string          `bson:"name" json:"name"`
	RegisteredAt time.Time       `bson:"registeredAt" json:"registered_at"`
	LastSeen     time.Time       `bson:"lastSeen" json:"last_seen"`
	EmailPrefs   map[string]bool `bson:"emailPrefs,omitempty" json:"email_prefs,omitempty"`

	// Sentinel timestamps for at-most-once and throttled sends. Unset means
	// never sent. FirstLoginEmailedAt transitions unset -> set exactly once.
	FirstLoginEmailedAt *time.Time `bson:"firstLoginEmailedAt,omitempty" json:"first_login_emailed_at,omitempty"`
	LastScoreEmailAt    *time.Time `bson:"lastScoreEmailAt,omitempty" json:"last_score_email_at,omitempty"`
	LastReminderAt      *time.Time `bson:"lastReminderAt,omitempty" json:"last_reminder_at,omitempty"`
}

// PrefEnabled reports whether a notification category is enabled for the
// user. Only an explicit false disables.
func (u *User) PrefEnabled(category string) bool {
	if u.EmailPrefs == nil {
		return true
	}
	enabled, ok := u.EmailPrefs[category]
	return !ok || enabled
}

// Questionnaire types are a small closed set of standardized instruments.
const (
	QuestionnairePHQ9 = "PHQ-9"
	QuestionnaireGAD7 = "GAD-7"
)

// Result is one questionnaire submission. Immutable once created; the
// pipeline only ever reads the most recent one per type.
type Result struct {
	UID               string    `bson:"firebaseUid" json:"uid"`
	QuestionnaireType string    `bson:"questionnaireType" json:"questionnaire_type"`
	TotalScore        int       `bson:"totalScore" json:"total_score"`
	CreatedAt         time.Time `bson:"createdAt" json:"created_at"`
}
