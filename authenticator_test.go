package registration_test

import (
	"context"
	"testing"

	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuther(t *testing.T) (*registration.Auther, *registration.Registrar) {
	t.Helper()

	repo := registration.NewRepositoryManager(memstore.New())
	registrar := registration.NewRegistrar(repo)
	provider := registration.NewUserProvider(repo)

	auther := registration.NewAuthenticator(provider, registration.SimpleConfig{
		SigningKey: "test-signing-key",
		Issuer:     "registration-tests",
		Audience:   []string{"web"},
	})

	return auther, registrar
}

func TestAutherLoginRoundTrip(t *testing.T) {
	auther, registrar := newAuther(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	record, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)
	require.NoError(t, registrar.SetPassword(ctx, record.ID, "correctPassword1!"))

	sessionToken, err := auther.Login(ctx, "phred@example.com", "correctPassword1!")
	require.NoError(t, err)
	require.NotEmpty(t, sessionToken)

	session, err := auther.SessionFromToken(sessionToken)
	require.NoError(t, err)
	assert.Equal(t, record.ID.String(), session.GetUserID())

	id, err := session.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, record.ID, id)

	identity, err := auther.IdentityFromSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "phred@example.com", identity.Email())
}

func TestAutherLoginFailure(t *testing.T) {
	auther, _ := newAuther(t)

	_, err := auther.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
}

func TestAutherAutoLogin(t *testing.T) {
	auther, registrar := newAuther(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	record, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)

	// No password on the account yet; auto-login must still work.
	sessionToken, err := auther.AutoLogin(ctx, record.ID)
	require.NoError(t, err)

	session, err := auther.SessionFromToken(sessionToken)
	require.NoError(t, err)
	assert.Equal(t, record.ID.String(), session.GetUserID())
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	auther, _ := newAuther(t)

	_, err := auther.SessionFromToken("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenServiceValidate(t *testing.T) {
	service := registration.NewTokenService(
		[]byte("test-signing-key"),
		1,
		"registration-tests",
		[]string{"web"},
		nil,
	)

	otherKey := registration.NewTokenService(
		[]byte("different-key"),
		1,
		"registration-tests",
		[]string{"web"},
		nil,
	)

	identity := staticIdentity{id: "user-1", role: "member"}

	token, err := service.Generate(identity)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		claims, err := service.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID())
		assert.Equal(t, "member", claims.Role())
	})

	t.Run("wrong signing key", func(t *testing.T) {
		_, err := otherKey.Validate(token)
		assert.Error(t, err)
	})

	t.Run("multiple audiences validate against the primary", func(t *testing.T) {
		multi := registration.NewTokenService(
			[]byte("test-signing-key"),
			1,
			"registration-tests",
			[]string{"web", "mobile"},
			nil,
		)

		token, err := multi.Generate(identity)
		require.NoError(t, err)

		claims, err := multi.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID())
	})
}

type staticIdentity struct {
	id   string
	role string
}

func (s staticIdentity) ID() string       { return s.id }
func (s staticIdentity) Username() string { return s.id }
func (s staticIdentity) Email() string    { return s.id + "@example.com" }
func (s staticIdentity) Role() string     { return s.role }
