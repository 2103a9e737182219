package registration

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Login or address requesting the reset."`
	ResetURL   string `json:"reset_url" doc:"Page where the user enters the token."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "registration.password_reset" }

type InitializePasswordResetResponse struct {
	Email   string
	Success bool
}

// InitializePasswordResetHandler issues a reset token and mails it. The
// response is identical whether or not the address has an account, so the
// endpoint cannot be used to probe which addresses are registered.
type InitializePasswordResetHandler struct {
	registrar *Registrar
	mailer    Mailer
	logger    Logger
}

func NewInitializePasswordResetHandler(registrar *Registrar, mailer Mailer) *InitializePasswordResetHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &InitializePasswordResetHandler{
		registrar: registrar,
		mailer:    mailer,
		logger:    defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Email: event.Email}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := h.registrar.RequestReset(ctx, event.Email)
	if err != nil {
		if goerrors.Is(err, ErrIdentityNotFound) {
			h.logger.Info("password reset requested for unknown address: %s", event.Email)
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	msg := ResetMessage(event.Email, token, event.ResetURL)
	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Error("failed to deliver password reset email: %v", err)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
