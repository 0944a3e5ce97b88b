package utils

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Provider tags recorded on send records. ProviderDemo marks a message that
// was reported as sent without any network call; it must never be conflated
// with a real delivery downstream.
const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
	ProviderMailgun  = "mailgun"
	ProviderResend   = "resend"
	ProviderDemo     = "demo"
)

// SendRequest is one outbound message handed to the gateway.
type SendRequest struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	HTMLBody  string
	MessageID string // caller-generated Message-ID, set as a header where the transport allows
}

// Credentials are the decrypted transport credentials for one user, plus the
// environment-level fallback key.
type Credentials struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	SendGridAPIKey string
	MailgunAPIKey  string
	MailgunDomain  string

	ResendAPIKey string // global fallback, from the environment
}

// SendOutcome reports which transport accepted the message.
type SendOutcome struct {
	Provider string
	Demo     bool
}

type providerAttempt struct {
	name       string
	configured func(*Credentials) bool
	send       func(*Credentials, *SendRequest) error
}

// ProviderGateway tries the configured transports in fixed priority order and
// stops at the first success: SMTP, SendGrid, Mailgun, then the Resend
// fallback. When no transport is configured at all it reports a demo success
// so campaigns keep progressing in unconfigured environments.
type ProviderGateway struct {
	httpClient *http.Client
	logger     *logrus.Logger
	attempts   []providerAttempt

	sendGridURL    string
	mailgunBaseURL string
	resendURL      string
}

func NewProviderGateway(timeout time.Duration, logger *logrus.Logger) *ProviderGateway {
	g := &ProviderGateway{
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
		sendGridURL:    "https://api.sendgrid.com/v3/mail/send",
		mailgunBaseURL: "https://api.mailgun.net/v3",
		resendURL:      "https://api.resend.com/emails",
	}

	g.attempts = []providerAttempt{
		{
			name: ProviderSMTP,
			configured: func(c *Credentials) bool {
				return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
			},
			send: g.sendSMTP,
		},
		{
			name: ProviderSendGrid,
			configured: func(c *Credentials) bool {
				return c.SendGridAPIKey != ""
			},
			send: g.sendSendGrid,
		},
		{
			name: ProviderMailgun,
			configured: func(c *Credentials) bool {
				return c.MailgunAPIKey != "" && c.MailgunDomain != ""
			},
			send: g.sendMailgun,
		},
		{
			name: ProviderResend,
			configured: func(c *Credentials) bool {
				return c.ResendAPIKey != ""
			},
			send: g.sendResend,
		},
	}

	return g
}

// Send attempts delivery through the failover cascade. A failure at one
// transport falls through to the next; the returned error carries the last
// transport failure only after every configured transport was exhausted.
func (g *ProviderGateway) Send(creds *Credentials, req *SendRequest) (*SendOutcome, error) {
	attempted := 0
	var lastErr error

	for _, attempt := range g.attempts {
		if !attempt.configured(creds) {
			continue
		}
		attempted++

		if err := attempt.send(creds, req); err != nil {
			lastErr = fmt.Errorf("%s: %w", attempt.name, err)
			g.logger.WithFields(logrus.Fields{
				"provider": attempt.name,
				"to":       req.To,
			}).WithError(err).Warn("provider attempt failed, falling through")
			continue
		}

		return &SendOutcome{Provider: attempt.name}, nil
	}

	if attempted == 0 {
		g.logger.WithField("to", req.To).Info("no provider configured, reporting demo send")
		return &SendOutcome{Provider: ProviderDemo, Demo: true}, nil
	}

	err := fmt.Errorf("all providers exhausted: %w", lastErr)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", "provider_exhausted")
		scope.SetExtra("recipient", req.To)
		scope.SetExtra("providers_attempted", attempted)
		sentry.CaptureException(err)
	})
	return nil, err
}

func (g *ProviderGateway) sendSMTP(creds *Credentials, req *SendRequest) error {
	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", req.FromName, req.FromEmail))
	m.SetHeader("To", req.To)
	m.SetHeader("Subject", req.Subject)
	if req.MessageID != "" {
		m.SetHeader("Message-ID", req.MessageID)
	}
	m.SetBody("text/html", req.HTMLBody)

	dialer := gomail.NewDialer(creds.SMTPHost, creds.SMTPPort, creds.SMTPUsername, creds.SMTPPassword)
	dialer.TLSConfig = &tls.Config{ServerName: creds.SMTPHost}

	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (g *ProviderGateway) sendSendGrid(creds *Credentials, req *SendRequest) error {
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{
				"to":      []map[string]string{{"email": req.To}},
				"headers": map[string]string{"Message-ID": req.MessageID},
			},
		},
		"from":    map[string]string{"email": req.FromEmail, "name": req.FromName},
		"subject": req.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": req.HTMLBody},
		},
	}

	return g.postJSON(g.sendGridURL, creds.SendGridAPIKey, payload)
}

func (g *ProviderGateway) sendMailgun(creds *Credentials, req *SendRequest) error {
	form := url.Values{}
	form.Set("from", fmt.Sprintf("%s <%s>", req.FromName, req.FromEmail))
	form.Set("to", req.To)
	form.Set("subject", req.Subject)
	form.Set("html", req.HTMLBody)
	if req.MessageID != "" {
		form.Set("h:Message-Id", req.MessageID)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", g.mailgunBaseURL, creds.MailgunDomain)
	httpReq, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth("api", creds.MailgunAPIKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return g.do(httpReq)
}

func (g *ProviderGateway) sendResend(creds *Credentials, req *SendRequest) error {
	payload := map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", req.FromName, req.FromEmail),
		"to":      []string{req.To},
		"subject": req.Subject,
		"html":    req.HTMLBody,
	}

	return g.postJSON(g.resendURL, creds.ResendAPIKey, payload)
}

func (g *ProviderGateway) postJSON(endpoint, apiKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	return g.do(httpReq)
}

func (g *ProviderGateway) do(req *http.Request) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// WithEndpoints overrides the HTTP provider endpoints; used by tests pointing
// the cascade at a local server.
func (g *ProviderGateway) WithEndpoints(sendGrid, mailgunBase, resend string) *ProviderGateway {
	if sendGrid != "" {
		g.sendGridURL = sendGrid
	}
	if mailgunBase != "" {
		g.mailgunBaseURL = mailgunBase
	}
	if resend != "" {
		g.resendURL = resend
	}
	return g
}
