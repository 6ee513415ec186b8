package contact

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	netmail "net/mail"
	"strings"
	"unicode/utf8"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/mail"
	"plantstore-be/internal/metrics"

	"go.uber.org/zap"
)

const (
	maxNameLen    = 120
	maxMessageLen = 5000
)

var messageTemplate = template.Must(template.New("contact").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2d1f;">
  <h2 style="color: #2f6b3a;">New message from the {{.StoreName}} contact form</h2>
  <p><strong>Name:</strong> {{.Name}}</p>
  <p><strong>Email:</strong> {{.Email}}</p>
  <div style="white-space: pre-wrap; border-left: 3px solid #2f6b3a; padding-left: 12px;">{{.Body}}</div>
</body>
</html>`))

type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (m *Message) normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Message = strings.TrimSpace(m.Message)
}

func (m Message) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidMessage)
	case utf8.RuneCountInString(m.Name) > maxNameLen:
		return fmt.Errorf("%w: name is too long", ErrInvalidMessage)
	case m.Message == "":
		return fmt.Errorf("%w: message is required", ErrInvalidMessage)
	case utf8.RuneCountInString(m.Message) > maxMessageLen:
		return fmt.Errorf("%w: message is too long", ErrInvalidMessage)
	}

	addr, err := netmail.ParseAddress(m.Email)
	if err != nil || addr.Address != m.Email {
		return fmt.Errorf("%w: email is invalid", ErrInvalidMessage)
	}
	return nil
}

type messageView struct {
	StoreName string
	Name      string
	Email     string
	Body      string
}

type Service interface {
	Submit(ctx context.Context, m Message) error
}

type service struct {
	sender     mail.Sender
	storeName  string
	adminEmail string
}

func NewService(sender mail.Sender, storeName, adminEmail string) Service {
	return &service{sender: sender, storeName: storeName, adminEmail: adminEmail}
}

func (s *service) Submit(ctx context.Context, m Message) error {
	m.normalize()
	if err := m.Validate(); err != nil {
		return err
	}
	if s.adminEmail == "" {
		return ErrNotConfigured
	}

	var body bytes.Buffer
	err := messageTemplate.Execute(&body, messageView{
		StoreName: s.storeName,
		Name:      m.Name,
		Email:     m.Email,
		Body:      m.Message,
	})
	if err != nil {
		return fmt.Errorf("render contact message: %w", err)
	}

	id, err := s.sender.Send(ctx, mail.Message{
		To:      []string{s.adminEmail},
		Subject: fmt.Sprintf("Contact form: %s", m.Name),
		HTML:    body.String(),
		ReplyTo: m.Email,
	})
	metrics.NotificationsTotal.WithLabelValues("contact", metrics.Outcome(err == nil)).Inc()
	if err != nil {
		logger.FromCtx(ctx).Error("contact message send failed",
			zap.String("from", m.Email),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	logger.FromCtx(ctx).Info("contact message sent",
		zap.String("from", m.Email),
		zap.String("message_id", id),
	)
	return nil
}
