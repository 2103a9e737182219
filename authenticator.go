package registration

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

var _ Authenticator = &Auther{}

// Auther issues and validates session tokens for confirmed accounts. Login
// checks credentials through the IdentityProvider; AutoLogin mints a session
// straight from an account ID, which is how a just-confirmed or just-reset
// user gets signed in without typing a password they do not have yet.
type Auther struct {
	provider     IdentityProvider
	logger       Logger
	tokenService TokenService
	activitySink ActivitySink
}

// NewAuthenticator returns a new Auther over the given provider.
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	return &Auther{
		provider: provider,
		logger:   defLogger{},
		tokenService: NewTokenService(
			[]byte(opts.GetSigningKey()),
			opts.GetTokenExpiration(),
			opts.GetIssuer(),
			opts.GetAudience(),
			defLogger{},
		),
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenService replaces the default HS256 token service.
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
	}
	return s
}

// TokenService returns the TokenService instance used by this Auther
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		return "", ErrIdentityNotFound
	}

	return s.tokenService.Generate(identity)
}

// AutoLogin mints a session token for the account without a credential
// check. Callers must only reach it through flows that already proved
// control of the account's e-mail.
func (s *Auther) AutoLogin(ctx context.Context, id uuid.UUID) (string, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, id.String())
	if err != nil {
		s.logger.Error("AutoLogin find identity error: %v", err)
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		return "", ErrIdentityNotFound
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		return "", err
	}

	if err := s.activitySink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Actor:      ActorRef{ID: identity.ID(), Type: "user"},
		UserID:     identity.ID(),
		Metadata:   map[string]any{"auto_login": true},
		OccurredAt: time.Now(),
	}); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}

	return token, nil
}

func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier: %v", err)
		return nil, err
	}

	return identity, nil
}
