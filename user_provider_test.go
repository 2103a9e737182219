package registration_test

import (
	"context"
	"testing"

	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProvider(t *testing.T) (*registration.UserProvider, registration.RepositoryManager, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	repo := registration.NewRepositoryManager(memstore.New())
	registrar := registration.NewRegistrar(repo)

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	record, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)
	require.NoError(t, registrar.SetPassword(ctx, record.ID, "correctPassword1!"))

	return registration.NewUserProvider(repo), repo, record.ID
}

func TestUserProviderAuthenticate(t *testing.T) {
	provider, _, id := setupProvider(t)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		got, err := provider.Authenticate(ctx, "phred@example.com", "correctPassword1!")
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := provider.Authenticate(ctx, "phred@example.com", "wrong")
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
	})

	t.Run("unknown login fails the same way", func(t *testing.T) {
		_, err := provider.Authenticate(ctx, "nobody@example.com", "correctPassword1!")
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
	})
}

func TestUserProviderPasswordlessAccount(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewRepositoryManager(memstore.New())
	registrar := registration.NewRegistrar(repo)

	token, err := registrar.BeginRegistration(ctx, "fresh@example.com")
	require.NoError(t, err)
	_, err = registrar.ConfirmRegistration(ctx, "fresh@example.com", token)
	require.NoError(t, err)

	provider := registration.NewUserProvider(repo)

	_, err = provider.Authenticate(ctx, "fresh@example.com", "")
	assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword,
		"an account with no password must not be reachable with an empty one")
}

func TestUserProviderVerifyIdentity(t *testing.T) {
	provider, _, id := setupProvider(t)
	ctx := context.Background()

	t.Run("by email", func(t *testing.T) {
		identity, err := provider.VerifyIdentity(ctx, "phred@example.com", "correctPassword1!")
		require.NoError(t, err)
		assert.Equal(t, id.String(), identity.ID())
		assert.Equal(t, "phred@example.com", identity.Email())
		assert.Equal(t, "member", identity.Role())
	})

	t.Run("by id", func(t *testing.T) {
		identity, err := provider.VerifyIdentity(ctx, id.String(), "correctPassword1!")
		require.NoError(t, err)
		assert.Equal(t, id.String(), identity.ID())
	})

	t.Run("bad password", func(t *testing.T) {
		_, err := provider.VerifyIdentity(ctx, "phred@example.com", "nope")
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
	})
}

func TestUserProviderAdminRole(t *testing.T) {
	provider, repo, id := setupProvider(t)
	ctx := context.Background()

	require.NoError(t, repo.Groups().AddMember(ctx, registration.GroupAdmin, id.String()))

	identity, err := provider.FindIdentityByIdentifier(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, "admin", identity.Role())
}

func TestUserProviderFindIdentityByIdentifier(t *testing.T) {
	provider, _, id := setupProvider(t)
	ctx := context.Background()

	t.Run("resolves login", func(t *testing.T) {
		identity, err := provider.FindIdentityByIdentifier(ctx, "phred@example.com")
		require.NoError(t, err)
		assert.Equal(t, id.String(), identity.ID())
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := provider.FindIdentityByIdentifier(ctx, "missing@example.com")
		assert.ErrorIs(t, err, registration.ErrIdentityNotFound)
	})
}

func TestUserProviderActivityEvents(t *testing.T) {
	provider, _, _ := setupProvider(t)
	ctx := context.Background()

	var events []registration.ActivityEvent
	provider.WithActivitySink(registration.ActivitySinkFunc(
		func(ctx context.Context, event registration.ActivityEvent) error {
			events = append(events, event)
			return nil
		}))

	t.Run("authenticate is a pure read", func(t *testing.T) {
		_, err := provider.Authenticate(ctx, "phred@example.com", "correctPassword1!")
		require.NoError(t, err)
		_, err = provider.Authenticate(ctx, "phred@example.com", "wrong")
		require.Error(t, err)
		assert.Empty(t, events)
	})

	t.Run("verify identity records login outcomes", func(t *testing.T) {
		_, err := provider.VerifyIdentity(ctx, "phred@example.com", "correctPassword1!")
		require.NoError(t, err)
		_, err = provider.VerifyIdentity(ctx, "phred@example.com", "wrong")
		require.Error(t, err)

		require.Len(t, events, 2)
		assert.Equal(t, registration.ActivityEventLoginSuccess, events[0].EventType)
		assert.Equal(t, registration.ActivityEventLoginFailure, events[1].EventType)
	})
}

func TestUserProviderLoginCooldown(t *testing.T) {
	provider, _, _ := setupProvider(t)
	provider.WithLoginTracker(registration.NewMemoryLoginTracker())
	ctx := context.Background()

	for i := 0; i <= registration.MaxLoginAttempts; i++ {
		_, err := provider.VerifyIdentity(ctx, "phred@example.com", "wrong")
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
	}

	t.Run("locked out even with the right password", func(t *testing.T) {
		_, err := provider.VerifyIdentity(ctx, "phred@example.com", "correctPassword1!")
		assert.ErrorIs(t, err, registration.ErrTooManyLoginAttempts)
	})
}

func TestUserProviderSuccessResetsAttempts(t *testing.T) {
	provider, _, id := setupProvider(t)
	provider.WithLoginTracker(registration.NewMemoryLoginTracker())
	ctx := context.Background()

	for i := 0; i < registration.MaxLoginAttempts; i++ {
		_, err := provider.VerifyIdentity(ctx, "phred@example.com", "wrong")
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
	}

	identity, err := provider.VerifyIdentity(ctx, "phred@example.com", "correctPassword1!")
	require.NoError(t, err)
	assert.Equal(t, id.String(), identity.ID())

	t.Run("counter starts over after a success", func(t *testing.T) {
		_, err := provider.VerifyIdentity(ctx, "phred@example.com", "wrong")
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)

		identity, err := provider.VerifyIdentity(ctx, "phred@example.com", "correctPassword1!")
		require.NoError(t, err)
		assert.Equal(t, id.String(), identity.ID())
	})
}
