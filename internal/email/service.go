// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email with a plain text fallback part
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-tackboard"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// InviteData holds data for the organization invite template
type InviteData struct {
	OrganizationName string
	InviterName      string
	InviteLink       string
}

var inviteTemplate = template.Must(template.New("invite").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
	<h2>You're invited to {{.OrganizationName}}</h2>
	<p>{{.InviterName}} has invited you to join the organization <strong>{{.OrganizationName}}</strong> on Tackboard.</p>
	<p><a href="{{.InviteLink}}" style="display: inline-block; padding: 10px 16px; background: #2563eb; color: #ffffff; text-decoration: none; border-radius: 6px;">Accept invite</a></p>
	<p>Or paste this link into your browser:<br>{{.InviteLink}}</p>
	<p style="color: #6b7280; font-size: 12px;">This invite expires in 7 days. If you weren't expecting it you can ignore this email.</p>
</body>
</html>`))

// RenderInvite renders the invite email body
func RenderInvite(data InviteData) (string, error) {
	var body bytes.Buffer
	if err := inviteTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render invite template: %w", err)
	}
	return body.String(), nil
}

// SendOrganizationInvite sends an invite email for an organization
func (s *Service) SendOrganizationInvite(toEmail string, data InviteData) error {
	body, err := RenderInvite(data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Invitation to join %s on Tackboard", data.OrganizationName)
	return s.SendHTMLEmail([]string{toEmail}, subject, body)
}

// VerificationData holds data for the email verification template
type VerificationData struct {
	UserName        string
	VerificationURL string
}

var verificationTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
	<h2>Verify your email</h2>
	<p>Hi {{.UserName}}, confirm your email address to finish setting up your Tackboard account.</p>
	<p><a href="{{.VerificationURL}}" style="display: inline-block; padding: 10px 16px; background: #2563eb; color: #ffffff; text-decoration: none; border-radius: 6px;">Verify email</a></p>
	<p style="color: #6b7280; font-size: 12px;">The link expires in 24 hours.</p>
</body>
</html>`))

// SendVerification sends an email verification message
func (s *Service) SendVerification(toEmail string, data VerificationData) error {
	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	return s.SendHTMLEmail([]string{toEmail}, "Verify your Tackboard email", body.String())
}
