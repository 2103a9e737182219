package registration

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LoginTracker records failed sign-in attempts so VerifyIdentity can refuse
// further tries inside the cooldown window. Tracking is optional; without a
// tracker every attempt is allowed.
type LoginTracker interface {
	// LoginAttempts returns the failure count and the time of the last
	// failure, nil when there has been none.
	LoginAttempts(ctx context.Context, login string) (int, *time.Time, error)
	TrackAttemptedLogin(ctx context.Context, login string) error
	TrackSuccessfulLogin(ctx context.Context, login string) error
}

// MaxLoginAttempts is the maximum number of failed attempts a login gets
// inside the cooldown period.
var MaxLoginAttempts = 5

// CoolDownPeriod is the window in which failed attempts accumulate.
var CoolDownPeriod = "24h"

// UserProvider bridges confirmed registrations into the authenticator. It
// satisfies IdentityProvider and adds a plain credential check that returns
// the account ID.
type UserProvider struct {
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink
	tracker  LoginTracker
}

// NewUserProvider creates a provider over the given repository manager.
func NewUserProvider(repo RepositoryManager) *UserProvider {
	return &UserProvider{
		repo:     repo,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (p *UserProvider) WithLogger(logger Logger) *UserProvider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *UserProvider) WithActivitySink(sink ActivitySink) *UserProvider {
	p.activity = normalizeActivitySink(sink)
	return p
}

// WithLoginTracker enables the sign-in cooldown for VerifyIdentity.
func (p *UserProvider) WithLoginTracker(tracker LoginTracker) *UserProvider {
	p.tracker = tracker
	return p
}

// Authenticate checks a login and password against the confirmed accounts
// and returns the account ID on success. Unknown logins, password-less
// accounts, and wrong passwords all fail with ErrMismatchedHashAndPassword
// so the response does not reveal which part was wrong. It is a pure read:
// no tracking, no activity events; session entry points go through
// VerifyIdentity, which carries both.
func (p *UserProvider) Authenticate(ctx context.Context, login, password string) (uuid.UUID, error) {
	record, err := p.repo.Confirmed().GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return uuid.Nil, ErrMismatchedHashAndPassword
		}
		return uuid.Nil, err
	}

	if !record.HasPassword() {
		return uuid.Nil, ErrMismatchedHashAndPassword
	}

	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		return uuid.Nil, err
	}

	return record.ID, nil
}

// VerifyIdentity authenticates an identifier/password pair and returns the
// matching identity. The identifier may be the account ID, e-mail, or login.
func (p *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	record, err := p.resolveIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			p.recordLogin(ctx, identifier, false)
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, err
	}

	if err := p.checkCooldown(ctx, record.Login); err != nil {
		return nil, err
	}

	if !record.HasPassword() {
		p.trackFailure(ctx, record.Login)
		p.recordLogin(ctx, identifier, false)
		return nil, ErrMismatchedHashAndPassword
	}

	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		p.trackFailure(ctx, record.Login)
		p.recordLogin(ctx, identifier, false)
		return nil, err
	}

	p.trackSuccess(ctx, record.Login)
	p.recordLogin(ctx, identifier, true)
	return p.identityFor(ctx, record)
}

func (p *UserProvider) checkCooldown(ctx context.Context, login string) error {
	if p.tracker == nil {
		return nil
	}

	attempts, last, err := p.tracker.LoginAttempts(ctx, login)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to read login attempts")
	}

	if last != nil {
		outside, err := IsOutsideThresholdPeriod(*last, CoolDownPeriod)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}
		if outside {
			attempts = 0
		}
	}

	if attempts > MaxLoginAttempts {
		return ErrTooManyLoginAttempts
	}
	return nil
}

func (p *UserProvider) trackFailure(ctx context.Context, login string) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.TrackAttemptedLogin(ctx, login); err != nil {
		p.logger.Warn("failed to track login attempt: %v", err)
	}
}

func (p *UserProvider) trackSuccess(ctx context.Context, login string) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.TrackSuccessfulLogin(ctx, login); err != nil {
		p.logger.Warn("failed to track successful login: %v", err)
	}
}

// FindIdentityByIdentifier resolves an identity without checking
// credentials. The identifier may be the account ID, e-mail, or login.
func (p *UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	record, err := p.resolveIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return p.identityFor(ctx, record)
}

func (p *UserProvider) resolveIdentifier(ctx context.Context, identifier string) (*Registration, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		record, err := p.repo.Confirmed().Get(ctx, id)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}
	}

	record, err := p.repo.Confirmed().GetByEmail(ctx, identifier)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}

	return p.repo.Confirmed().GetByLogin(ctx, identifier)
}

func (p *UserProvider) identityFor(ctx context.Context, record *Registration) (Identity, error) {
	role := "member"
	groups, err := p.repo.Groups().GroupsOf(ctx, record.ID.String())
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g == GroupAdmin {
			role = "admin"
		}
	}

	return &authIdentity{
		id:       record.ID.String(),
		username: record.Login,
		email:    record.Email,
		role:     role,
	}, nil
}

func (p *UserProvider) recordLogin(ctx context.Context, identifier string, ok bool) {
	eventType := ActivityEventLoginFailure
	if ok {
		eventType = ActivityEventLoginSuccess
	}
	p.recordActivity(ctx, ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: identifier, Type: "login"},
		OccurredAt: time.Now(),
	})
}

func (p *UserProvider) recordActivity(ctx context.Context, event ActivityEvent) {
	if err := p.activity.Record(ctx, event); err != nil {
		p.logger.Warn("activity sink record error: %v", err)
	}
}

type authIdentity struct {
	id       string
	username string
	email    string
	role     string
}

func (a *authIdentity) ID() string       { return a.id }
func (a *authIdentity) Username() string { return a.username }
func (a *authIdentity) Email() string    { return a.email }
func (a *authIdentity) Role() string     { return a.role }
