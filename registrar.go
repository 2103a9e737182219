package registration

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// AccountUpdate carries the fields of a profile update. Nil pointers leave
// the current value in place; the zero string clears it where clearing is
// legal (security question and answer).
type AccountUpdate struct {
	Login            *string
	Email            *string
	Password         *string
	SecurityQuestion *string
	SecurityAnswer   *string
}

// Registrar drives the registration lifecycle: begin, confirm, password
// reset, and profile updates. Every mutation runs inside a single store
// transaction so the record and its indexes move together.
type Registrar struct {
	repo             RepositoryManager
	logger           Logger
	activity         ActivitySink
	generateToken    TokenGenerator
	generatePassword PasswordGenerator
	deterministicIDs bool
	pendingTTL       string
	resetTTL         string
}

// NewRegistrar creates a Registrar over the given repository manager.
func NewRegistrar(repo RepositoryManager) *Registrar {
	return &Registrar{
		repo:             repo,
		logger:           defLogger{},
		activity:         noopActivitySink{},
		generateToken:    UUIDTokenGenerator,
		generatePassword: RandomPassword,
	}
}

func (r *Registrar) WithLogger(logger Logger) *Registrar {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Registrar) WithActivitySink(sink ActivitySink) *Registrar {
	r.activity = normalizeActivitySink(sink)
	return r
}

func (r *Registrar) WithTokenGenerator(gen TokenGenerator) *Registrar {
	if gen != nil {
		r.generateToken = gen
	}
	return r
}

func (r *Registrar) WithPasswordGenerator(gen PasswordGenerator) *Registrar {
	if gen != nil {
		r.generatePassword = gen
	}
	return r
}

// WithDeterministicIDs derives account IDs from the e-mail address instead
// of minting random ones, so repeated imports of the same directory converge
// on the same identifiers.
func (r *Registrar) WithDeterministicIDs(enabled bool) *Registrar {
	r.deterministicIDs = enabled
	return r
}

// WithPendingTTL expires confirmation tokens older than the given duration
// pattern, e.g. "48h". Empty means tokens never expire.
func (r *Registrar) WithPendingTTL(pattern string) *Registrar {
	r.pendingTTL = pattern
	return r
}

// WithResetTTL expires reset tokens older than the given duration pattern.
// Empty means tokens never expire.
func (r *Registrar) WithResetTTL(pattern string) *Registrar {
	r.resetTTL = pattern
	return r
}

// BeginRegistration records a pending signup for the e-mail and returns the
// confirmation token to deliver out of band. Calling it again for the same
// e-mail replaces the previous pending record, invalidating its token.
func (r *Registrar) BeginRegistration(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", ErrNoEmptyString
	}

	token := r.generateToken()
	if err := r.repo.Pending().Set(ctx, email, token); err != nil {
		return "", err
	}

	r.logger.Info("registration started: %s", email)
	r.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRegistrationStarted,
		Actor:      ActorRef{ID: email, Type: "email"},
		OccurredAt: time.Now(),
	})

	return token, nil
}

// ConfirmRegistration promotes a pending signup to a confirmed account. The
// e-mail and token must both match: an unknown e-mail yields
// ErrNotRegistered and a wrong token yields ErrTokenMismatch, leaving the
// pending record in place so the user can retry with the correct token.
//
// The new account gets a fresh ID, its login set to the e-mail, and no
// password.
func (r *Registrar) ConfirmRegistration(ctx context.Context, email, token string) (*Registration, error) {
	var record *Registration

	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		pending, err := r.repo.Pending().GetTx(ctx, tx, email)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return ErrNotRegistered
			}
			return err
		}

		if r.pendingTTL != "" && r.expired(pending.CreatedAt, r.pendingTTL) {
			return ErrTokenExpired
		}

		if !TokensEqual(pending.Token, token) {
			return ErrTokenMismatch
		}

		id, err := r.mintID(email)
		if err != nil {
			return err
		}

		record = &Registration{
			ID:    id,
			Email: email,
			Login: email,
		}

		if err := r.repo.Confirmed().UpsertTx(ctx, tx, record); err != nil {
			return err
		}
		return r.repo.Pending().RemoveTx(ctx, tx, email)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("registration confirmed: %s -> %s", email, record.ID)
	r.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRegistrationConfirmed,
		Actor:      ActorRef{ID: email, Type: "email"},
		UserID:     record.ID.String(),
		OccurredAt: time.Now(),
	})

	return record, nil
}

func (r *Registrar) mintID(email string) (uuid.UUID, error) {
	if r.deterministicIDs {
		id, err := hashid.NewUUID(email)
		if err != nil {
			return uuid.Nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive account id")
		}
		return id, nil
	}
	return uuid.New(), nil
}

// RequestReset issues a reset token for the account with the given login
// and returns it for out of band delivery. The login starts out as a copy of
// the e-mail, so addresses keep working as identifiers even after a rename.
// Unknown logins yield ErrIdentityNotFound; callers that face the public
// should swallow that and answer the same way regardless.
func (r *Registrar) RequestReset(ctx context.Context, login string) (string, error) {
	token := r.generateToken()

	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := r.getByLoginOrEmailTx(ctx, tx, login)
		if err != nil {
			return err
		}

		now := time.Now()
		record.ResetToken = token
		record.ResetRequestedAt = &now
		return r.repo.Confirmed().UpsertTx(ctx, tx, record)
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("password reset requested: %s", login)
	r.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordResetRequest,
		Actor:      ActorRef{ID: login, Type: "login"},
		OccurredAt: time.Now(),
	})

	return token, nil
}

// getByLoginOrEmailTx resolves an identifier as a login first and falls back
// to the e-mail index, so reset flows accept either.
func (r *Registrar) getByLoginOrEmailTx(ctx context.Context, tx Tx, login string) (*Registration, error) {
	record, err := r.repo.Confirmed().GetByLoginTx(ctx, tx, login)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}
	return r.repo.Confirmed().GetByEmailTx(ctx, tx, login)
}

// VerifyReset consumes a reset token. On a match it clears both the token
// and the password in one transaction and returns the account ID, leaving
// the account password-less until SetPassword runs. An account with no
// outstanding token, a mismatched token, or an expired one yields
// ErrTokenMismatch or ErrTokenExpired without touching the record.
func (r *Registrar) VerifyReset(ctx context.Context, login, token string) (uuid.UUID, error) {
	var id uuid.UUID

	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := r.getByLoginOrEmailTx(ctx, tx, login)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return ErrTokenMismatch
			}
			return err
		}

		if !record.HasResetToken() {
			return ErrTokenMismatch
		}
		if r.resetTTL != "" && record.ResetRequestedAt != nil &&
			r.expired(*record.ResetRequestedAt, r.resetTTL) {
			return ErrTokenExpired
		}
		if !TokensEqual(record.ResetToken, token) {
			return ErrTokenMismatch
		}

		record.clearReset()
		record.PasswordHash = ""
		id = record.ID
		return r.repo.Confirmed().UpsertTx(ctx, tx, record)
	})
	if err != nil {
		return uuid.Nil, err
	}

	r.logger.Info("password reset verified: %s", login)
	r.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		Actor:      ActorRef{ID: login, Type: "login"},
		UserID:     id.String(),
		OccurredAt: time.Now(),
	})

	return id, nil
}

// SetPassword hashes and stores a new password for the account. Any
// outstanding reset token is cleared: changing the password settles whatever
// flow minted the token.
func (r *Registrar) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	return r.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := r.repo.Confirmed().GetTx(ctx, tx, id)
		if err != nil {
			return err
		}

		record.PasswordHash = hash
		record.clearReset()
		return r.repo.Confirmed().UpsertTx(ctx, tx, record)
	})
}

// GenerateTemporaryPassword mints a random password, installs it on the
// account, and returns the plaintext so the caller can deliver it once. The
// plaintext is never stored.
func (r *Registrar) GenerateTemporaryPassword(ctx context.Context, id uuid.UUID) (string, error) {
	password := r.generatePassword()
	if err := r.SetPassword(ctx, id, password); err != nil {
		return "", err
	}
	return password, nil
}

// UpdateAccount applies a profile update. Login and e-mail changes are
// checked for collisions against other accounts inside the transaction, and
// any change clears an outstanding reset token.
func (r *Registrar) UpdateAccount(ctx context.Context, id uuid.UUID, update AccountUpdate) (*Registration, error) {
	var updated *Registration

	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := r.repo.Confirmed().GetTx(ctx, tx, id)
		if err != nil {
			return err
		}

		if update.Login != nil && *update.Login != record.Login {
			if *update.Login == "" {
				return ErrNoEmptyString
			}
			if err := r.checkAvailableTx(ctx, tx, r.repo.Confirmed().GetByLoginTx, *update.Login, id, ErrLoginNotAvailable); err != nil {
				return err
			}
			record.Login = *update.Login
		}

		if update.Email != nil && *update.Email != record.Email {
			if *update.Email == "" {
				return ErrNoEmptyString
			}
			if err := r.checkAvailableTx(ctx, tx, r.repo.Confirmed().GetByEmailTx, *update.Email, id, ErrEmailNotAvailable); err != nil {
				return err
			}
			record.Email = *update.Email
		}

		if update.Password != nil {
			hash, err := HashPassword(*update.Password)
			if err != nil {
				return err
			}
			record.PasswordHash = hash
		}

		if update.SecurityQuestion != nil {
			record.SecurityQuestion = *update.SecurityQuestion
		}
		if update.SecurityAnswer != nil {
			record.SecurityAnswer = *update.SecurityAnswer
		}

		record.clearReset()
		updated = record
		return r.repo.Confirmed().UpsertTx(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	r.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventAccountUpdated,
		Actor:      ActorRef{ID: id.String(), Type: "user"},
		UserID:     id.String(),
		OccurredAt: time.Now(),
	})

	return updated, nil
}

func (r *Registrar) checkAvailableTx(ctx context.Context, tx Tx, lookup func(context.Context, Tx, string) (*Registration, error), value string, self uuid.UUID, conflict error) error {
	other, err := lookup(ctx, tx, value)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil
		}
		return err
	}
	if other.ID != self {
		return conflict
	}
	return nil
}

func (r *Registrar) expired(t time.Time, pattern string) bool {
	outside, err := IsOutsideThresholdPeriod(t, pattern)
	if err != nil {
		r.logger.Warn("invalid ttl pattern %q: %v", pattern, err)
		return false
	}
	return outside
}

func (r *Registrar) recordActivity(ctx context.Context, event ActivityEvent) {
	if err := r.activity.Record(ctx, event); err != nil {
		r.logger.Warn("activity sink record error: %v", err)
	}
}

// Lookup fetches a confirmed account by ID.
func (r *Registrar) Lookup(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return r.repo.Confirmed().Get(ctx, id)
}

// LookupByEmail fetches a confirmed account by e-mail.
func (r *Registrar) LookupByEmail(ctx context.Context, email string) (*Registration, error) {
	return r.repo.Confirmed().GetByEmail(ctx, email)
}

// LookupByLogin fetches a confirmed account by login.
func (r *Registrar) LookupByLogin(ctx context.Context, login string) (*Registration, error) {
	return r.repo.Confirmed().GetByLogin(ctx, login)
}

// PendingFor fetches the pending registration for an e-mail, when one
// exists.
func (r *Registrar) PendingFor(ctx context.Context, email string) (*PendingRegistration, error) {
	return r.repo.Pending().Get(ctx, email)
}

// ListPending lists pending registrations ordered by e-mail.
func (r *Registrar) ListPending(ctx context.Context) ([]*PendingRegistration, error) {
	return r.repo.Pending().List(ctx)
}

// ListConfirmed lists confirmed accounts ordered by e-mail.
func (r *Registrar) ListConfirmed(ctx context.Context) ([]*Registration, error) {
	return r.repo.Confirmed().List(ctx)
}
