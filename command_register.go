package registration

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RegisterMessage struct {
	Email           string `json:"email" example:"pepe.rone@example.com" doc:"Address to register."`
	ConfirmationURL string `json:"confirmation_url" doc:"Page where the user enters the token."`
	OnResponse      func(resp *RegisterResponse)
}

func (e RegisterMessage) Type() string { return "registration.register" }

type RegisterResponse struct {
	Email   string
	Token   string
	Success bool
}

type RegisterHandler struct {
	registrar *Registrar
	mailer    Mailer
	logger    Logger
}

func NewRegisterHandler(registrar *Registrar, mailer Mailer) *RegisterHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &RegisterHandler{
		registrar: registrar,
		mailer:    mailer,
		logger:    defLogger{},
	}
}

func (h *RegisterHandler) WithLogger(logger Logger) *RegisterHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterHandler) Execute(ctx context.Context, event RegisterMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterHandler) execute(ctx context.Context, event RegisterMessage) error {
	resp := &RegisterResponse{Email: event.Email}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := h.registrar.BeginRegistration(ctx, event.Email)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to begin registration")
	}

	resp.Token = token

	// The pending record is already committed; a delivery failure must not
	// undo it, the user can re-submit the form for a fresh token.
	msg := ConfirmationMessage(event.Email, token, event.ConfirmationURL)
	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Error("failed to deliver confirmation email: %v", err)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
