// internal/otp/providers.go

package otp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// EmailProvider defines the email provider interface
type EmailProvider interface {
	SendEmail(ctx context.Context, template *EmailTemplate) error
}

// SMTPEmailProvider implements EmailProvider using SMTP
type SMTPEmailProvider struct {
	from     string
	fromName string
	dialer   *gomail.Dialer
}

// NewSMTPEmailProvider creates a new SMTP email provider
func NewSMTPEmailProvider(host string, port int, username, password, from, fromName string) EmailProvider {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.TLSConfig = &tls.Config{ServerName: host}

	return &SMTPEmailProvider{
		from:     from,
		fromName: fromName,
		dialer:   dialer,
	}
}

// SendEmail sends an email using SMTP
func (p *SMTPEmailProvider) SendEmail(ctx context.Context, emailData *EmailTemplate) error {
	htmlContent, plainTextContent, err := renderEmail(emailData)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(p.from, p.fromName))
	m.SetHeader("To", emailData.To)
	m.SetHeader("Subject", emailData.Subject)

	if htmlContent != "" {
		m.SetBody("text/html", htmlContent)
		m.AddAlternative("text/plain", plainTextContent)
	} else {
		m.SetBody("text/plain", plainTextContent)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// SendGridEmailProvider implements EmailProvider using SendGrid
type SendGridEmailProvider struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGridEmailProvider creates a new SendGrid email provider
func NewSendGridEmailProvider(apiKey, from, fromName string) EmailProvider {
	return &SendGridEmailProvider{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

// SendEmail sends an email using SendGrid
func (p *SendGridEmailProvider) SendEmail(ctx context.Context, emailData *EmailTemplate) error {
	htmlContent, plainTextContent, err := renderEmail(emailData)
	if err != nil {
		return err
	}

	from := mail.NewEmail(p.fromName, p.from)
	to := mail.NewEmail("", emailData.To)
	message := mail.NewSingleEmail(from, emailData.Subject, to, plainTextContent, htmlContent)

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid returned error status: %d", response.StatusCode)
	}

	return nil
}

// MockEmailProvider records emails instead of sending them.
// Used in development and tests.
type MockEmailProvider struct {
	mu         sync.Mutex
	sentEmails []EmailTemplate
	Err        error
	Quiet      bool
}

// NewMockEmailProvider creates a new mock email provider
func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

// SendEmail mocks sending an email
func (p *MockEmailProvider) SendEmail(ctx context.Context, template *EmailTemplate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}

	p.sentEmails = append(p.sentEmails, *template)
	if !p.Quiet {
		log.Printf("[mock email] to=%s subject=%q code=%v", template.To, template.Subject, template.Data["code"])
	}
	return nil
}

// SentEmails returns a copy of every recorded email
func (p *MockEmailProvider) SentEmails() []EmailTemplate {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EmailTemplate, len(p.sentEmails))
	copy(out, p.sentEmails)
	return out
}

// LastCode returns the code of the newest email to recipient
func (p *MockEmailProvider) LastCode(recipient string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.sentEmails) - 1; i >= 0; i-- {
		if p.sentEmails[i].To == recipient {
			code, ok := p.sentEmails[i].Data["code"].(string)
			return code, ok
		}
	}
	return "", false
}
