package registration

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/goliatone/go-errors"
)

// PendingRegistrations is the repository for unconfirmed signups, keyed by
// e-mail. Setting an e-mail that already has a pending record replaces it
// wholesale; there is never more than one outstanding token per e-mail.
type PendingRegistrations interface {
	Set(ctx context.Context, email, token string) error
	SetTx(ctx context.Context, tx Tx, email, token string) error
	SetRecordTx(ctx context.Context, tx Tx, record *PendingRegistration) error
	Get(ctx context.Context, email string) (*PendingRegistration, error)
	GetTx(ctx context.Context, tx Tx, email string) (*PendingRegistration, error)
	Remove(ctx context.Context, email string) error
	RemoveTx(ctx context.Context, tx Tx, email string) error
	EachTx(ctx context.Context, tx Tx, fn func(*PendingRegistration) error) error
	List(ctx context.Context) ([]*PendingRegistration, error)
}

type pendingRegistrations struct {
	store Store
}

// NewPendingRegistrations builds the repository over the given store.
func NewPendingRegistrations(store Store) PendingRegistrations {
	return &pendingRegistrations{store: store}
}

func (p *pendingRegistrations) Set(ctx context.Context, email, token string) error {
	return p.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return p.SetTx(ctx, tx, email, token)
	})
}

func (p *pendingRegistrations) SetTx(ctx context.Context, tx Tx, email, token string) error {
	return p.SetRecordTx(ctx, tx, &PendingRegistration{
		Email:     email,
		Token:     token,
		CreatedAt: time.Now(),
	})
}

func (p *pendingRegistrations) SetRecordTx(ctx context.Context, tx Tx, record *PendingRegistration) error {
	// Replacing is modeled as delete+recreate so a partially applied update
	// can never leave the old token alive next to new fields.
	if err := tx.Delete(BucketPending, record.Email); err != nil && !IsKeyNotFound(err) {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode pending registration")
	}

	return tx.Set(BucketPending, record.Email, raw)
}

func (p *pendingRegistrations) Get(ctx context.Context, email string) (*PendingRegistration, error) {
	var record *PendingRegistration
	err := p.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		record, err = p.GetTx(ctx, tx, email)
		return err
	})
	return record, err
}

func (p *pendingRegistrations) GetTx(ctx context.Context, tx Tx, email string) (*PendingRegistration, error) {
	raw, err := tx.Get(BucketPending, email)
	if err != nil {
		if IsKeyNotFound(err) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	record := &PendingRegistration{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode pending registration")
	}

	return record, nil
}

func (p *pendingRegistrations) Remove(ctx context.Context, email string) error {
	return p.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return p.RemoveTx(ctx, tx, email)
	})
}

func (p *pendingRegistrations) RemoveTx(ctx context.Context, tx Tx, email string) error {
	if err := tx.Delete(BucketPending, email); err != nil {
		if IsKeyNotFound(err) {
			return ErrRecordNotFound
		}
		return err
	}
	return nil
}

func (p *pendingRegistrations) EachTx(ctx context.Context, tx Tx, fn func(*PendingRegistration) error) error {
	return tx.Scan(BucketPending, func(key string, value []byte) error {
		record := &PendingRegistration{}
		if err := json.Unmarshal(value, record); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to decode pending registration").
				WithMetadata(map[string]any{"email": key})
		}
		return fn(record)
	})
}

func (p *pendingRegistrations) List(ctx context.Context) ([]*PendingRegistration, error) {
	var out []*PendingRegistration
	err := p.store.View(ctx, func(ctx context.Context, tx Tx) error {
		return p.EachTx(ctx, tx, func(record *PendingRegistration) error {
			out = append(out, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
