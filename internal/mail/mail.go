package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"plantstore-be/internal/logger"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("email api key is not configured")

type Message struct {
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

// SendError is returned for any rejected or failed send.
type SendError struct {
	To      []string
	Subject string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %q to %s: %v", e.Subject, strings.Join(e.To, ","), e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

type Sender interface {
	// Send delivers one message and returns the provider message id.
	Send(ctx context.Context, msg Message) (string, error)
}

type resendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) Sender {
	if apiKey == "" {
		logger.L().Warn("Resend API key is empty, emails will not be sent")
		return &resendSender{from: from}
	}
	return &resendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *resendSender) Send(ctx context.Context, msg Message) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "mail"),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)

	if s.client == nil {
		return "", &SendError{To: msg.To, Subject: msg.Subject, Err: ErrNotConfigured}
	}
	if len(msg.To) == 0 {
		return "", &SendError{Subject: msg.Subject, Err: errors.New("no recipients")}
	}

	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		log.Error("email send failed", zap.Error(err))
		return "", &SendError{To: msg.To, Subject: msg.Subject, Err: err}
	}

	log.Info("email sent", zap.String("message_id", sent.Id))
	return sent.Id, nil
}
