package registration

import (
	"context"
	"crypto/tls"

	mail "github.com/go-mail/mail"
	"github.com/goliatone/go-errors"
)

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "ssl" | "none"
	InsecureSkipVerify bool
	logger             Logger
}

// NewSMTPMailer creates an SMTPMailer with STARTTLS negotiation left to the
// dialer.
func NewSMTPMailer(host string, port int, from, user, pass string) *SMTPMailer {
	return &SMTPMailer{
		Host:    host,
		Port:    port,
		From:    from,
		User:    user,
		Pass:    pass,
		TLSMode: "auto",
		logger:  defLogger{},
	}
}

func (s *SMTPMailer) WithLogger(logger Logger) *SMTPMailer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}

	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.InsecureSkipVerify}
	default:
		// "auto": the dialer negotiates STARTTLS when the server offers it
	}

	if err := d.DialAndSend(m); err != nil {
		s.logger.Error("smtp send failed: %v", err)
		return errors.Wrap(err, errors.CategoryOperation, "smtp send failed").
			WithMetadata(map[string]any{"to": msg.To, "subject": msg.Subject})
	}

	s.logger.Debug("email sent: %s", msg.To)
	return nil
}
