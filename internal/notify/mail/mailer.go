// Package mail sends the pipeline's templated transactional email.
package mail

import "context"

// Message is one outbound email. Text is an optional plain-text alternative.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Receipt identifies a delivered message.
type Receipt struct {
	ID string
}

// Mailer hands a message to the mail transport. Errors are transport facts
// (auth failure, network failure, rejected recipient); callers decide whether
// they are fatal.
type Mailer interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
