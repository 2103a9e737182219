package registration

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ConfirmRegistrationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Address being confirmed."`
	Token      string `json:"token" doc:"Confirmation token from the registration e-mail."`
	LoginURL   string `json:"login_url" doc:"Page where the user can sign in."`
	OnResponse func(resp *ConfirmRegistrationResponse)
}

func (e ConfirmRegistrationMessage) Type() string { return "registration.confirm" }

type ConfirmRegistrationResponse struct {
	Record *Registration
	// SessionToken is set when an authenticator is wired; otherwise a
	// temporary password is generated and mailed instead.
	SessionToken string
	Success      bool
}

// ConfirmRegistrationHandler promotes a pending signup. With an
// authenticator it signs the new account in; without one it falls back to
// mailing a generated password.
type ConfirmRegistrationHandler struct {
	registrar *Registrar
	auther    Authenticator
	mailer    Mailer
	logger    Logger
}

func NewConfirmRegistrationHandler(registrar *Registrar, mailer Mailer) *ConfirmRegistrationHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &ConfirmRegistrationHandler{
		registrar: registrar,
		mailer:    mailer,
		logger:    defLogger{},
	}
}

func (h *ConfirmRegistrationHandler) WithLogger(logger Logger) *ConfirmRegistrationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmRegistrationHandler) WithAuthenticator(auther Authenticator) *ConfirmRegistrationHandler {
	h.auther = auther
	return h
}

func (h *ConfirmRegistrationHandler) Execute(ctx context.Context, event ConfirmRegistrationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmRegistrationHandler) execute(ctx context.Context, event ConfirmRegistrationMessage) error {
	resp := &ConfirmRegistrationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	record, err := h.registrar.ConfirmRegistration(ctx, event.Email, event.Token)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm registration")
	}

	resp.Record = record

	if h.auther != nil {
		token, err := h.auther.AutoLogin(ctx, record.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to auto-login confirmed account")
		}
		resp.SessionToken = token
	} else {
		password, err := h.registrar.GenerateTemporaryPassword(ctx, record.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate temporary password")
		}

		msg := GeneratedPasswordMessage(record.Email, password, event.LoginURL)
		if err := h.mailer.Send(ctx, msg); err != nil {
			h.logger.Error("failed to deliver generated password email: %v", err)
		}
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
