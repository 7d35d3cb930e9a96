package models

// Realtime event names pushed to a user's connected sessions.
const (
	EventRegistered = "notifications:registered"
	EventEmailSent  = "email:sent"
	EventAuthLogin  = "auth:login"
)

// Email kinds reported in email:sent payloads and metrics labels.
const (
	EmailKindRegister    = "register"
	EmailKindFirstLogin  = "firstLogin"
	EmailKindLoginScores = "loginScores"
	EmailKindWelcomeBack = "welcomeBack"
	EmailKindReminder    = "reminder"
	EmailKindTest        = "test"
)

// RegisteredPayload is the notifications:registered event body.
type RegisteredPayload struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Existed bool   `json:"existed"`
}

// EmailSentPayload is the email:sent event body.
type EmailSentPayload struct {
	Kind string `json:"kind"`
	To   string `json:"to"`
}

// AuthLoginPayload is the auth:login event body. When is unix milliseconds.
type AuthLoginPayload struct {
	When int64 `json:"when"`
}
