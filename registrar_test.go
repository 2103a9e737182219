package registration_test

import (
	"context"
	"testing"
	"time"

	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistrar(t *testing.T) (*registration.Registrar, registration.RepositoryManager) {
	t.Helper()
	repo := registration.NewRepositoryManager(memstore.New())
	return registration.NewRegistrar(repo), repo
}

func TestRegistrationLifecycle(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("wrong token keeps pending record intact", func(t *testing.T) {
		_, err := registrar.ConfirmRegistration(ctx, "phred@example.com", "bogus")
		assert.ErrorIs(t, err, registration.ErrTokenMismatch)

		pending, err := registrar.PendingFor(ctx, "phred@example.com")
		require.NoError(t, err)
		assert.Equal(t, token, pending.Token)
	})

	t.Run("unknown email yields not-registered", func(t *testing.T) {
		_, err := registrar.ConfirmRegistration(ctx, "nobody@example.com", token)
		assert.ErrorIs(t, err, registration.ErrNotRegistered)
	})

	var confirmed *registration.Registration

	t.Run("confirm with the right token", func(t *testing.T) {
		var err error
		confirmed, err = registrar.ConfirmRegistration(ctx, "phred@example.com", token)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, confirmed.ID)
		assert.Equal(t, "phred@example.com", confirmed.Email)
		assert.Equal(t, "phred@example.com", confirmed.Login, "login defaults to the e-mail")
		assert.False(t, confirmed.HasPassword())
	})

	t.Run("confirmed record is visible through lookups", func(t *testing.T) {
		byEmail, err := registrar.LookupByEmail(ctx, "phred@example.com")
		require.NoError(t, err)
		assert.Equal(t, confirmed.ID, byEmail.ID)

		byLogin, err := registrar.LookupByLogin(ctx, "phred@example.com")
		require.NoError(t, err)
		assert.Equal(t, confirmed.ID, byLogin.ID)
	})

	t.Run("pending record is consumed", func(t *testing.T) {
		_, err := registrar.PendingFor(ctx, "phred@example.com")
		assert.ErrorIs(t, err, registration.ErrRecordNotFound)

		_, err = registrar.ConfirmRegistration(ctx, "phred@example.com", token)
		assert.ErrorIs(t, err, registration.ErrNotRegistered)
	})
}

func TestBeginRegistrationReplacesToken(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	first, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)

	second, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = registrar.ConfirmRegistration(ctx, "phred@example.com", first)
	assert.ErrorIs(t, err, registration.ErrTokenMismatch, "the first token must be dead")

	_, err = registrar.ConfirmRegistration(ctx, "phred@example.com", second)
	assert.NoError(t, err)
}

func TestBeginRegistrationRejectsEmptyEmail(t *testing.T) {
	registrar, _ := newRegistrar(t)

	_, err := registrar.BeginRegistration(context.Background(), "")
	assert.ErrorIs(t, err, registration.ErrNoEmptyString)
}

func TestDeterministicIDs(t *testing.T) {
	ctx := context.Background()

	confirmOnce := func(t *testing.T) uuid.UUID {
		registrar, _ := newRegistrar(t)
		registrar.WithDeterministicIDs(true)

		token, err := registrar.BeginRegistration(ctx, "phred@example.com")
		require.NoError(t, err)

		record, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
		require.NoError(t, err)
		return record.ID
	}

	assert.Equal(t, confirmOnce(t), confirmOnce(t))
}

func TestPasswordResetRoundTrip(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	confirmed, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)
	require.NoError(t, registrar.SetPassword(ctx, confirmed.ID, "originalPassword1!"))

	t.Run("unknown email", func(t *testing.T) {
		_, err := registrar.RequestReset(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, registration.ErrIdentityNotFound)
	})

	reset, err := registrar.RequestReset(ctx, "phred@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, reset)

	t.Run("wrong token leaves the record alone", func(t *testing.T) {
		_, err := registrar.VerifyReset(ctx, "phred@example.com", "bogus")
		assert.ErrorIs(t, err, registration.ErrTokenMismatch)

		record, err := registrar.LookupByEmail(ctx, "phred@example.com")
		require.NoError(t, err)
		assert.True(t, record.HasResetToken())
		assert.True(t, record.HasPassword())
	})

	t.Run("matching token clears token and password together", func(t *testing.T) {
		id, err := registrar.VerifyReset(ctx, "phred@example.com", reset)
		require.NoError(t, err)
		assert.Equal(t, confirmed.ID, id)

		record, err := registrar.LookupByEmail(ctx, "phred@example.com")
		require.NoError(t, err)
		assert.False(t, record.HasResetToken())
		assert.False(t, record.HasPassword())
	})

	t.Run("token is single use", func(t *testing.T) {
		_, err := registrar.VerifyReset(ctx, "phred@example.com", reset)
		assert.ErrorIs(t, err, registration.ErrTokenMismatch)
	})
}

func TestPasswordResetByCustomLogin(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	confirmed, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)

	login := "phred"
	_, err = registrar.UpdateAccount(ctx, confirmed.ID, registration.AccountUpdate{
		Login: &login,
	})
	require.NoError(t, err)

	t.Run("reset keys off the login after a rename", func(t *testing.T) {
		reset, err := registrar.RequestReset(ctx, "phred")
		require.NoError(t, err)

		id, err := registrar.VerifyReset(ctx, "phred", reset)
		require.NoError(t, err)
		assert.Equal(t, confirmed.ID, id)
	})

	t.Run("the e-mail still works as an identifier", func(t *testing.T) {
		reset, err := registrar.RequestReset(ctx, "phred@example.com")
		require.NoError(t, err)

		id, err := registrar.VerifyReset(ctx, "phred@example.com", reset)
		require.NoError(t, err)
		assert.Equal(t, confirmed.ID, id)
	})
}

func TestSetPasswordClearsResetToken(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	confirmed, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)

	_, err = registrar.RequestReset(ctx, "phred@example.com")
	require.NoError(t, err)

	require.NoError(t, registrar.SetPassword(ctx, confirmed.ID, "freshPassword1!"))

	record, err := registrar.Lookup(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.False(t, record.HasResetToken(), "any password change settles the reset flow")
	assert.True(t, record.HasPassword())
}

func TestGenerateTemporaryPassword(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	confirmed, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)

	password, err := registrar.GenerateTemporaryPassword(ctx, confirmed.ID)
	require.NoError(t, err)
	require.NotEmpty(t, password)

	record, err := registrar.Lookup(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.True(t, record.HasPassword())
	assert.NotContains(t, record.PasswordHash, password, "only the hash is stored")
	assert.NoError(t, registration.ComparePasswordAndHash(password, record.PasswordHash))
}

func TestUpdateAccount(t *testing.T) {
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	confirm := func(email string) *registration.Registration {
		token, err := registrar.BeginRegistration(ctx, email)
		require.NoError(t, err)
		record, err := registrar.ConfirmRegistration(ctx, email, token)
		require.NoError(t, err)
		return record
	}

	phred := confirm("phred@example.com")
	wilma := confirm("wilma@example.com")

	t.Run("login rename re-points the index", func(t *testing.T) {
		login := "phred"
		updated, err := registrar.UpdateAccount(ctx, phred.ID, registration.AccountUpdate{Login: &login})
		require.NoError(t, err)
		assert.Equal(t, "phred", updated.Login)

		byLogin, err := registrar.LookupByLogin(ctx, "phred")
		require.NoError(t, err)
		assert.Equal(t, phred.ID, byLogin.ID)

		_, err = registrar.LookupByLogin(ctx, "phred@example.com")
		assert.ErrorIs(t, err, registration.ErrIdentityNotFound)
	})

	t.Run("taken login is rejected", func(t *testing.T) {
		login := "phred"
		_, err := registrar.UpdateAccount(ctx, wilma.ID, registration.AccountUpdate{Login: &login})
		assert.ErrorIs(t, err, registration.ErrLoginNotAvailable)
	})

	t.Run("taken email is rejected", func(t *testing.T) {
		email := "phred@example.com"
		_, err := registrar.UpdateAccount(ctx, wilma.ID, registration.AccountUpdate{Email: &email})
		assert.ErrorIs(t, err, registration.ErrEmailNotAvailable)
	})

	t.Run("keeping your own login is fine", func(t *testing.T) {
		login := "phred"
		question := "color"
		answer := "blue"
		updated, err := registrar.UpdateAccount(ctx, phred.ID, registration.AccountUpdate{
			Login:            &login,
			SecurityQuestion: &question,
			SecurityAnswer:   &answer,
		})
		require.NoError(t, err)
		assert.Equal(t, "color", updated.SecurityQuestion)
		assert.Equal(t, "blue", updated.SecurityAnswer)
	})

	t.Run("empty login is rejected", func(t *testing.T) {
		login := ""
		_, err := registrar.UpdateAccount(ctx, phred.ID, registration.AccountUpdate{Login: &login})
		assert.ErrorIs(t, err, registration.ErrNoEmptyString)
	})

	t.Run("any update clears an outstanding reset token", func(t *testing.T) {
		_, err := registrar.RequestReset(ctx, "wilma@example.com")
		require.NoError(t, err)

		answer := "rex"
		_, err = registrar.UpdateAccount(ctx, wilma.ID, registration.AccountUpdate{SecurityAnswer: &answer})
		require.NoError(t, err)

		record, err := registrar.Lookup(ctx, wilma.ID)
		require.NoError(t, err)
		assert.False(t, record.HasResetToken())
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := registrar.UpdateAccount(ctx, uuid.New(), registration.AccountUpdate{})
		assert.ErrorIs(t, err, registration.ErrIdentityNotFound)
	})
}

func TestPendingTTL(t *testing.T) {
	registrar, repo := newRegistrar(t)
	registrar.WithPendingTTL("1h")
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)

	t.Run("fresh token confirms", func(t *testing.T) {
		_, err := registrar.ConfirmRegistration(ctx, "phred@example.com", token)
		assert.NoError(t, err)
	})

	t.Run("stale token is rejected", func(t *testing.T) {
		stale := &registration.PendingRegistration{
			Email:     "old@example.com",
			Token:     "stale-token",
			CreatedAt: timeHoursAgo(2),
		}
		require.NoError(t, repo.RunInTx(ctx, func(ctx context.Context, tx registration.Tx) error {
			return repo.Pending().SetRecordTx(ctx, tx, stale)
		}))

		_, err := registrar.ConfirmRegistration(ctx, "old@example.com", "stale-token")
		assert.ErrorIs(t, err, registration.ErrTokenExpired)
	})
}

func timeHoursAgo(h int) time.Time {
	return time.Now().Add(-time.Duration(h) * time.Hour)
}

func TestActivityEvents(t *testing.T) {
	repo := registration.NewRepositoryManager(memstore.New())

	var events []registration.ActivityEvent
	registrar := registration.NewRegistrar(repo).WithActivitySink(
		registration.ActivitySinkFunc(func(ctx context.Context, event registration.ActivityEvent) error {
			events = append(events, event)
			return nil
		}),
	)
	ctx := context.Background()

	token, err := registrar.BeginRegistration(ctx, "phred@example.com")
	require.NoError(t, err)
	_, err = registrar.ConfirmRegistration(ctx, "phred@example.com", token)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, registration.ActivityEventRegistrationStarted, events[0].EventType)
	assert.Equal(t, registration.ActivityEventRegistrationConfirmed, events[1].EventType)
	assert.NotEmpty(t, events[1].UserID)
}
