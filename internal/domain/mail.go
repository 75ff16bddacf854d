package domain

import "context"

// Message is an outbound email. At least one of Text or HTML is set.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers email out of band.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}
