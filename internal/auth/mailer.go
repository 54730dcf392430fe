package auth

import (
	"context"
	"sync"

	"lms-dashboard-go/internal/logger"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Mail struct {
	To      string
	Subject string
	Body    string
}

// LogMailer writes mails to the log instead of delivering them. Sent keeps a
// copy of every mail for inspection.
type LogMailer struct {
	log  *logger.Logger
	mu   sync.Mutex
	sent []Mail
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log.With("component", "LogMailer")}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, Mail{To: to, Subject: subject, Body: body})
	m.mu.Unlock()
	m.log.Info("mail", "to", to, "subject", subject, "body", body)
	return nil
}

func (m *LogMailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}
