package registration

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Login or address the reset was issued for."`
	Token      string `json:"token" doc:"Reset token from the e-mail."`
	Password   string `json:"password" doc:"New password; empty to have one generated and mailed."`
	LoginURL   string `json:"login_url" doc:"Page where the user can sign in."`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "registration.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	Record *Registration
	// SessionToken is set when an authenticator is wired and the user chose
	// a password; the temp-password fallback mails credentials instead.
	SessionToken string
	Success      bool
}

// FinalizePasswordResetHandler consumes a reset token and installs the new
// password. With no password in the message it generates one and mails it,
// mirroring the no-auto-login confirmation fallback.
type FinalizePasswordResetHandler struct {
	registrar *Registrar
	auther    Authenticator
	mailer    Mailer
	logger    Logger
}

func NewFinalizePasswordResetHandler(registrar *Registrar, mailer Mailer) *FinalizePasswordResetHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &FinalizePasswordResetHandler{
		registrar: registrar,
		mailer:    mailer,
		logger:    defLogger{},
	}
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithAuthenticator(auther Authenticator) *FinalizePasswordResetHandler {
	h.auther = auther
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := h.registrar.VerifyReset(ctx, event.Email, event.Token)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify password reset")
	}

	if event.Password != "" {
		if err := h.registrar.SetPassword(ctx, id, event.Password); err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set password")
		}

		if h.auther != nil {
			token, err := h.auther.AutoLogin(ctx, id)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to auto-login after reset")
			}
			resp.SessionToken = token
		}
	} else {
		password, err := h.registrar.GenerateTemporaryPassword(ctx, id)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate temporary password")
		}

		msg := GeneratedPasswordMessage(event.Email, password, event.LoginURL)
		if err := h.mailer.Send(ctx, msg); err != nil {
			h.logger.Error("failed to deliver generated password email: %v", err)
		}
	}

	record, err := h.registrar.Lookup(ctx, id)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account after reset")
	}
	resp.Record = record

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
