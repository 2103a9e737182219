package registration

import (
	"context"
	"fmt"
	"sync"
)

// MailMessage is a plain-text message to a single recipient.
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers registration messages. Delivery failures are the caller's
// to log; a failed send never rolls back the state change it announces.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

const confirmationBody = `
Thank you for registering.

In your browser, please copy and paste the following string
into the 'Token' field:

  %s

If you do not still have that page open, you can visit it via
this URL:

  %s

Once you have entered the token, click the "Confirm" button to
complete your registration.
`

const generatedPasswordBody = `Your new password is:

  %s

You can login to the site at the following URL:

  %s
`

const resetBody = `
A password reset was requested for this address.

In your browser, please copy and paste the following string
into the 'Token' field:

  %s

If you do not still have that page open, you can visit it via
this URL:

  %s

If you did not request a reset, you can ignore this message.
`

// ConfirmationMessage builds the signup confirmation e-mail.
func ConfirmationMessage(to, token, confirmationURL string) MailMessage {
	return MailMessage{
		To:      to,
		Subject: "Site registration confirmation",
		Body:    fmt.Sprintf(confirmationBody, token, confirmationURL),
	}
}

// GeneratedPasswordMessage builds the temporary password e-mail sent when a
// user completes a flow without an authenticator to sign them in.
func GeneratedPasswordMessage(to, password, loginURL string) MailMessage {
	return MailMessage{
		To:      to,
		Subject: "Your new site password",
		Body:    fmt.Sprintf(generatedPasswordBody, password, loginURL),
	}
}

// ResetMessage builds the password reset e-mail.
func ResetMessage(to, token, resetURL string) MailMessage {
	return MailMessage{
		To:      to,
		Subject: "Site password reset",
		Body:    fmt.Sprintf(resetBody, token, resetURL),
	}
}

// NoopMailer drops every message. Useful for setups that deliver tokens
// through another channel.
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, MailMessage) error {
	return nil
}

// RecorderMailer captures sent messages in memory.
type RecorderMailer struct {
	mu       sync.Mutex
	messages []MailMessage
}

func (r *RecorderMailer) Send(ctx context.Context, msg MailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *RecorderMailer) Messages() []MailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MailMessage, len(r.messages))
	copy(out, r.messages)
	return out
}
