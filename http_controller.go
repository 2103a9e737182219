package registration

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// User-facing guidance strings. The token messages deliberately do not say
// whether the e-mail was known.
const (
	MsgRegisterFirst   = "Please register first."
	MsgRegisterOrVisit = "Please register first or visit the link in your confirmation e-mail."
	MsgCheckToken      = "Please copy the token from your confirmation e-mail."
	MsgResetSent       = "If that address is registered, a reset e-mail is on its way."
)

// SecurityQuestion is one entry of the account form's question picker.
type SecurityQuestion struct {
	Key   string
	Label string
}

var SecurityQuestions = []SecurityQuestion{
	{Key: "color", Label: "What is your favorite color?"},
	{Key: "borncity", Label: "In what city were you born?"},
	{Key: "petname", Label: "What was the name of your favorite childhood pet?"},
}

type ControllerRoutes struct {
	Register      string
	Confirm       string
	Login         string
	Logout        string
	PasswordReset string
	Account       string
}

type ControllerViews struct {
	Register      string
	Confirm       string
	Login         string
	PasswordReset string
	Account       string
}

type Controller struct {
	Debug        bool
	Logger       Logger
	Registrar    *Registrar
	Auther       Authenticator
	Mailer       Mailer
	CookieName   string
	Routes       *ControllerRoutes
	Views        *ControllerViews
	ErrorHandler router.ErrorHandler
}

type ControllerOption func(*Controller) *Controller

func WithControllerRegistrar(registrar *Registrar) ControllerOption {
	return func(c *Controller) *Controller {
		c.Registrar = registrar
		return c
	}
}

func WithControllerAuthenticator(auther Authenticator) ControllerOption {
	return func(c *Controller) *Controller {
		c.Auther = auther
		return c
	}
}

func WithControllerMailer(mailer Mailer) ControllerOption {
	return func(c *Controller) *Controller {
		c.Mailer = mailer
		return c
	}
}

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:       defLogger{},
		Mailer:       NoopMailer{},
		CookieName:   "registration_session",
		ErrorHandler: defaultErrHandler,
		Routes: &ControllerRoutes{
			Register:      "/register",
			Confirm:       "/confirm",
			Login:         "/login",
			Logout:        "/logout",
			PasswordReset: "/password-reset",
			Account:       "/account",
		},
		Views: &ControllerViews{
			Register:      "register",
			Confirm:       "confirm",
			Login:         "login",
			PasswordReset: "password_reset",
			Account:       "account",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Registrar == nil {
		panic("Missing Registrar in registration controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in registration controller...")
	}

	return c
}

func RegisterRoutes[T any](app router.Router[T], opts ...ControllerOption) {
	controller := NewController(opts...)

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Confirm, controller.ConfirmShow).
		SetName("confirm.get")
	app.Post(controller.Routes.Confirm, controller.ConfirmCreate).
		SetName("confirm.post")

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")
	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Get(fmt.Sprintf("%s/verify", controller.Routes.PasswordReset), controller.PasswordResetForm).
		SetName("pwd-reset-do.get")
	app.Post(fmt.Sprintf("%s/verify", controller.Routes.PasswordReset), controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")

	app.Get(controller.Routes.Account, controller.AccountShow).
		SetName("account.get")
	app.Post(controller.Routes.Account, controller.AccountUpdate).
		SetName("account.post")
}

func (a *Controller) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors":  nil,
		"record":  nil,
		"message": ctx.Query("message"),
	})
}

// RegistrationCreatePayload is the signup form payload
type RegistrationCreatePayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
	)
}

func (a *Controller) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	confirmationURL := urlWithQuery(a.Routes.Confirm, "email", payload.Email)

	req := RegisterMessage{
		Email:           payload.Email,
		ConfirmationURL: confirmationURL,
	}

	register := NewRegisterHandler(a.Registrar, a.Mailer).WithLogger(a.Logger)
	if err := register.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register execute error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering address",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return ctx.Redirect(confirmationURL, router.StatusSeeOther)
}

func (a *Controller) ConfirmShow(ctx router.Context) error {
	email := ctx.Query("email")
	if email == "" {
		return ctx.Redirect(
			urlWithQuery(a.Routes.Register, "message", MsgRegisterOrVisit),
			router.StatusSeeOther,
		)
	}

	if _, err := a.Registrar.PendingFor(ctx.Context(), email); err != nil {
		if goerrors.Is(err, ErrRecordNotFound) {
			return ctx.Redirect(
				urlWithQuery(a.Routes.Register, "message", MsgRegisterFirst),
				router.StatusSeeOther,
			)
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Confirm, router.ViewContext{
		"errors":  nil,
		"record":  ConfirmPayload{Email: email},
		"message": ctx.Query("message"),
	})
}

// ConfirmPayload is the confirmation form payload
type ConfirmPayload struct {
	Email string `form:"email" json:"email"`
	Token string `form:"token" json:"token"`
}

// Validate will validate the payload
func (r ConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *Controller) ConfirmCreate(ctx router.Context) error {
	payload := new(ConfirmPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("confirm parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Confirm, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("confirm validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Confirm, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	var res *ConfirmRegistrationResponse

	req := ConfirmRegistrationMessage{
		Email:    payload.Email,
		Token:    payload.Token,
		LoginURL: a.Routes.Login,
		OnResponse: func(resp *ConfirmRegistrationResponse) {
			res = resp
		},
	}

	confirm := NewConfirmRegistrationHandler(a.Registrar, a.Mailer).
		WithLogger(a.Logger).
		WithAuthenticator(a.Auther)

	if err := confirm.Execute(ctx.Context(), req); err != nil {
		if IsNotRegistered(err) {
			return ctx.Redirect(
				urlWithQuery(a.Routes.Register, "message", MsgRegisterFirst),
				router.StatusSeeOther,
			)
		}
		if IsTokenMismatch(err) {
			return flash.WithError(ctx, router.ViewContext{
				"error_message": MsgCheckToken,
			}).Render(a.Views.Confirm, router.ViewContext{
				"record":  payload,
				"message": MsgCheckToken,
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= CONFIRM REGISTRATION ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("===================================")
	}

	if res.SessionToken != "" {
		a.setSessionCookie(ctx, res.SessionToken)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Registration confirmed",
	}).Redirect(a.Routes.Account, fiber.StatusSeeOther)
}

func (a *Controller) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": err.Error(),
		})
	}

	if a.Debug {
		fmt.Println("======= LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("====================")
	}

	token, err := a.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  map[string]string{"authentication": "Authentication Error"},
			"payload": payload,
		})
	}

	a.setSessionCookie(ctx, token)

	return ctx.Redirect("/", router.StatusSeeOther)
}

func (a *Controller) LogOut(ctx router.Context) error {
	ctx.Cookie(&router.Cookie{
		Name:     a.CookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
	})
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *Controller) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *Controller) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	req := InitializePasswordResetMessage{
		Email:    payload.Email,
		ResetURL: urlWithQuery(a.Routes.PasswordReset+"/verify", "email", payload.Email),
	}

	initReset := NewInitializePasswordResetHandler(a.Registrar, a.Mailer).WithLogger(a.Logger)
	if err := initReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset execute error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error requesting reset",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	// Same answer for known and unknown addresses.
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgResetSent,
	}).Redirect(a.Routes.PasswordReset, fiber.StatusSeeOther)
}

func (a *Controller) PasswordResetForm(ctx router.Context) error {
	email := ctx.Query("email")
	if email == "" {
		return ctx.Redirect(a.Routes.PasswordReset, router.StatusSeeOther)
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors":  nil,
		"record":  PasswordResetVerifyPayload{Email: email},
		"message": ctx.Query("message"),
	})
}

// PasswordResetVerifyPayload holds values for finalizing a password reset
type PasswordResetVerifyPayload struct {
	Email           string `form:"email" json:"email"`
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *Controller) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset finalize parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset finalize validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	var res *FinalizePasswordResetResponse

	req := FinalizePasswordResetMessage{
		Email:    payload.Email,
		Token:    payload.Token,
		Password: payload.Password,
		LoginURL: a.Routes.Login,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			res = resp
		},
	}

	finalize := NewFinalizePasswordResetHandler(a.Registrar, a.Mailer).
		WithLogger(a.Logger).
		WithAuthenticator(a.Auther)

	if err := finalize.Execute(ctx.Context(), req); err != nil {
		if IsTokenMismatch(err) {
			return flash.WithError(ctx, router.ViewContext{
				"error_message": MsgCheckToken,
			}).Render(a.Views.PasswordReset, router.ViewContext{
				"record":  payload,
				"message": MsgCheckToken,
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	if res.SessionToken != "" {
		a.setSessionCookie(ctx, res.SessionToken)
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Password updated",
		}).Redirect(a.Routes.Account, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your e-mail for your new password",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *Controller) AccountShow(ctx router.Context) error {
	record, err := a.currentAccount(ctx)
	if err != nil {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Account, router.ViewContext{
		"errors":    nil,
		"record":    accountFormFromRecord(record),
		"questions": SecurityQuestions,
	})
}

// AccountUpdatePayload is the account edit form payload
type AccountUpdatePayload struct {
	Login            string `form:"login_name" json:"login_name"`
	Email            string `form:"email" json:"email"`
	Password         string `form:"password" json:"password"`
	ConfirmPassword  string `form:"confirm_password" json:"confirm_password"`
	SecurityQuestion string `form:"security_question" json:"security_question"`
	SecurityAnswer   string `form:"security_answer" json:"security_answer"`
}

// Validate will validate the payload
func (r AccountUpdatePayload) Validate() error {
	questionKeys := make([]any, 0, len(SecurityQuestions)+1)
	questionKeys = append(questionKeys, "")
	for _, q := range SecurityQuestions {
		questionKeys = append(questionKeys, q.Key)
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Login, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(&r.SecurityQuestion, validation.In(questionKeys...)),
	)
}

func (a *Controller) AccountUpdate(ctx router.Context) error {
	record, err := a.currentAccount(ctx)
	if err != nil {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	payload := new(AccountUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("account update parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Account, router.ViewContext{
			"errors":    map[string]string{"form": "Failed to parse form"},
			"record":    payload,
			"questions": SecurityQuestions,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("account update validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Account, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
			"questions":  SecurityQuestions,
		})
	}

	update := AccountUpdate{
		Login:            &payload.Login,
		Email:            &payload.Email,
		SecurityQuestion: &payload.SecurityQuestion,
		SecurityAnswer:   &payload.SecurityAnswer,
	}
	if payload.Password != "" {
		update.Password = &payload.Password
	}

	if _, err := a.Registrar.UpdateAccount(ctx.Context(), record.ID, update); err != nil {
		message := "Error updating account"
		if IsUniquenessConflict(err) {
			message = "Login name not available"
		}
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": message,
		}).Render(a.Views.Account, router.ViewContext{
			"record":    payload,
			"errors":    []string{message},
			"questions": SecurityQuestions,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account updated",
	}).Redirect(a.Routes.Account, fiber.StatusSeeOther)
}

func (a *Controller) currentAccount(ctx router.Context) (*Registration, error) {
	raw := ctx.Cookies(a.CookieName)
	if raw == "" {
		return nil, ErrUnableToFindSession
	}

	session, err := a.Auther.SessionFromToken(raw)
	if err != nil {
		return nil, err
	}

	id, err := session.GetUserUUID()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session carries a malformed user id")
	}

	return a.Registrar.Lookup(ctx.Context(), id)
}

func (a *Controller) setSessionCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     a.CookieName,
		Value:    token,
		Expires:  time.Now().Add(24 * time.Hour),
		HTTPOnly: true,
	})
}

func accountFormFromRecord(record *Registration) AccountUpdatePayload {
	return AccountUpdatePayload{
		Login:            record.Login,
		Email:            record.Email,
		SecurityQuestion: record.SecurityQuestion,
		SecurityAnswer:   record.SecurityAnswer,
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return stderrors.New("values must match")
		}
		return nil
	}
}

func urlWithQuery(path, key, value string) string {
	return fmt.Sprintf("%s?%s=%s", path, key, url.QueryEscape(value))
}

func formatValidationErrors(err error) map[string]string {
	out := map[string]string{}

	var fieldErrs validation.Errors
	if stderrors.As(err, &fieldErrs) {
		for field, ferr := range fieldErrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["validation"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
