package app

import (
	"context"
	"strings"

	"bookstore/internal/domain"

	"go.uber.org/zap"
)

// ContactService relays contact-form messages to the shop's inbox.
type ContactService struct {
	mailer domain.Mailer
	to     string
	log    *zap.Logger
}

// NewContactService creates a ContactService delivering to the address to.
func NewContactService(mailer domain.Mailer, to string, opts ...Option) *ContactService {
	o := buildOptions(opts)
	return &ContactService{mailer: mailer, to: to, log: o.log}
}

// Send forwards a message. Either text or html must be present; an HTML-only
// message gets a plain-text part derived from the markup.
func (s *ContactService) Send(ctx context.Context, subject, text, html, replyTo string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" || (strings.TrimSpace(text) == "" && strings.TrimSpace(html) == "") {
		return domain.NewError(domain.KindValidation, "missing required fields")
	}
	replyTo = normalizeEmail(replyTo)
	if replyTo != "" {
		if err := validateEmail(replyTo); err != nil {
			return err
		}
	}

	if strings.TrimSpace(text) == "" {
		text = htmlToText(html)
	}

	err := s.mailer.Send(ctx, domain.Message{
		To:      s.to,
		ReplyTo: replyTo,
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
	if err != nil {
		return domain.Dependency("failed to send email", err)
	}
	s.log.Info("contact message sent", zap.String("subject", subject))
	return nil
}
