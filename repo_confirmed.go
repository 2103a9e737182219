package registration

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ConfirmedRegistrations is the repository for confirmed accounts. It owns
// the secondary indexes: every write keeps by_email and by_login pointing at
// exactly the records that currently carry those values, inside the same
// transaction as the primary record.
type ConfirmedRegistrations interface {
	Upsert(ctx context.Context, record *Registration) error
	UpsertTx(ctx context.Context, tx Tx, record *Registration) error
	Remove(ctx context.Context, id uuid.UUID) error
	RemoveTx(ctx context.Context, tx Tx, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Registration, error)
	GetTx(ctx context.Context, tx Tx, id uuid.UUID) (*Registration, error)
	GetByEmail(ctx context.Context, email string) (*Registration, error)
	GetByEmailTx(ctx context.Context, tx Tx, email string) (*Registration, error)
	GetByLogin(ctx context.Context, login string) (*Registration, error)
	GetByLoginTx(ctx context.Context, tx Tx, login string) (*Registration, error)
	EachTx(ctx context.Context, tx Tx, fn func(*Registration) error) error
	List(ctx context.Context) ([]*Registration, error)
}

type confirmedRegistrations struct {
	store Store
}

// NewConfirmedRegistrations builds the repository over the given store.
func NewConfirmedRegistrations(store Store) ConfirmedRegistrations {
	return &confirmedRegistrations{store: store}
}

func (c *confirmedRegistrations) Upsert(ctx context.Context, record *Registration) error {
	return c.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return c.UpsertTx(ctx, tx, record)
	})
}

// UpsertTx writes the record and re-points the secondary indexes. When an
// older version of the record exists, any index entry for an e-mail or login
// the record no longer carries is deleted before the new entries go in, so a
// rename never leaves a dangling alias behind.
func (c *confirmedRegistrations) UpsertTx(ctx context.Context, tx Tx, record *Registration) error {
	now := time.Now()
	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	old, err := c.GetTx(ctx, tx, record.ID)
	if err != nil && !errors.Is(err, ErrIdentityNotFound) {
		return err
	}

	if old != nil {
		if old.Email != record.Email {
			if err := tx.Delete(BucketByEmail, old.Email); err != nil && !IsKeyNotFound(err) {
				return err
			}
		}
		if old.Login != record.Login {
			if err := tx.Delete(BucketByLogin, old.Login); err != nil && !IsKeyNotFound(err) {
				return err
			}
		}
		record.CreatedAt = old.CreatedAt
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode registration")
	}

	id := record.ID.String()
	if err := tx.Set(BucketByID, id, raw); err != nil {
		return err
	}
	if err := tx.Set(BucketByEmail, record.Email, []byte(id)); err != nil {
		return err
	}
	return tx.Set(BucketByLogin, record.Login, []byte(id))
}

func (c *confirmedRegistrations) Remove(ctx context.Context, id uuid.UUID) error {
	return c.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return c.RemoveTx(ctx, tx, id)
	})
}

// RemoveTx deletes the record and both of its index entries, using the
// stored record to learn which e-mail and login keys to drop.
func (c *confirmedRegistrations) RemoveTx(ctx context.Context, tx Tx, id uuid.UUID) error {
	record, err := c.GetTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrRecordNotFound
		}
		return err
	}

	if err := tx.Delete(BucketByEmail, record.Email); err != nil && !IsKeyNotFound(err) {
		return err
	}
	if err := tx.Delete(BucketByLogin, record.Login); err != nil && !IsKeyNotFound(err) {
		return err
	}
	if err := tx.Delete(BucketByID, id.String()); err != nil && !IsKeyNotFound(err) {
		return err
	}
	return nil
}

func (c *confirmedRegistrations) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	var record *Registration
	err := c.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		record, err = c.GetTx(ctx, tx, id)
		return err
	})
	return record, err
}

func (c *confirmedRegistrations) GetTx(ctx context.Context, tx Tx, id uuid.UUID) (*Registration, error) {
	raw, err := tx.Get(BucketByID, id.String())
	if err != nil {
		if IsKeyNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return decodeRegistration(raw)
}

func (c *confirmedRegistrations) GetByEmail(ctx context.Context, email string) (*Registration, error) {
	var record *Registration
	err := c.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		record, err = c.GetByEmailTx(ctx, tx, email)
		return err
	})
	return record, err
}

func (c *confirmedRegistrations) GetByEmailTx(ctx context.Context, tx Tx, email string) (*Registration, error) {
	return c.getByIndexTx(ctx, tx, BucketByEmail, email)
}

func (c *confirmedRegistrations) GetByLogin(ctx context.Context, login string) (*Registration, error) {
	var record *Registration
	err := c.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		record, err = c.GetByLoginTx(ctx, tx, login)
		return err
	})
	return record, err
}

func (c *confirmedRegistrations) GetByLoginTx(ctx context.Context, tx Tx, login string) (*Registration, error) {
	return c.getByIndexTx(ctx, tx, BucketByLogin, login)
}

func (c *confirmedRegistrations) getByIndexTx(ctx context.Context, tx Tx, bucket Bucket, key string) (*Registration, error) {
	ref, err := tx.Get(bucket, key)
	if err != nil {
		if IsKeyNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(string(ref))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "corrupt index entry").
			WithMetadata(map[string]any{"bucket": string(bucket), "key": key})
	}

	return c.GetTx(ctx, tx, id)
}

func (c *confirmedRegistrations) EachTx(ctx context.Context, tx Tx, fn func(*Registration) error) error {
	return tx.Scan(BucketByID, func(key string, value []byte) error {
		record, err := decodeRegistration(value)
		if err != nil {
			return err
		}
		return fn(record)
	})
}

func (c *confirmedRegistrations) List(ctx context.Context) ([]*Registration, error) {
	var out []*Registration
	err := c.store.View(ctx, func(ctx context.Context, tx Tx) error {
		return c.EachTx(ctx, tx, func(record *Registration) error {
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

func decodeRegistration(raw []byte) (*Registration, error) {
	record := &Registration{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode registration")
	}
	return record, nil
}
