package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenGenerator produces opaque, cryptographically unpredictable tokens for
// confirmation and reset flows. The default is a UUIDv4.
type TokenGenerator func() string

// PasswordGenerator produces random temporary passwords for the
// no-auto-login fallback path.
type PasswordGenerator func() string

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// IdentityProvider ensures we have a store to retrieve auth identities.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// Authenticator issues and validates sessions for confirmed identities.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	AutoLogin(ctx context.Context, id uuid.UUID) (string, error)
	SessionFromToken(token string) (Session, error)
	IdentityFromSession(ctx context.Context, session Session) (Identity, error)
}

// Config holds the session/auto-login options.
type Config interface {
	GetSigningKey() string
	GetContextKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
}

// TokenService mints and validates session tokens.
type TokenService interface {
	Generate(identity Identity) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(token string) (*JWTClaims, error)
}

// SimpleConfig is a plain-struct Config for composition roots that do not
// carry their own configuration layer.
type SimpleConfig struct {
	SigningKey      string
	ContextKey      string
	TokenExpiration int
	Issuer          string
	Audience        []string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "registration_session"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] "+format+"\n", args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] "+format+"\n", args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] "+format+"\n", args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] "+format+"\n", args...)
}
