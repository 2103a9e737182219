// Package bunstore provides a registration.Store backed by a SQL database
// through bun. Every bucket entry is a row in a single table keyed by
// (bucket, record_key), and RunInTx maps straight onto a database
// transaction.
package bunstore

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/uptrace/bun"
)

type record struct {
	bun.BaseModel `bun:"table:registration_records"`

	Bucket string `bun:"bucket,pk"`
	Key    string `bun:"record_key,pk"`
	Value  []byte `bun:"record_value,notnull"`
}

// Store is a SQL-backed registration.Store.
type Store struct {
	db *bun.DB
}

var _ registration.Store = (*Store)(nil)

// New creates a store over the given bun database handle.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the backing table when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*record)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to create registration records table")
	}
	return nil
}

// RunInTx runs fn inside a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx registration.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &bunTx{ctx: ctx, db: tx})
	})
}

// View runs fn against a read-only snapshot. Writes fail with ErrReadOnlyTx.
// Read-only is enforced here rather than through sql.TxOptions because not
// every driver supports read-only transactions.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx registration.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &bunTx{ctx: ctx, db: tx, readOnly: true})
	})
}

type bunTx struct {
	ctx      context.Context
	db       bun.IDB
	readOnly bool
}

func (t *bunTx) Get(bucket registration.Bucket, key string) ([]byte, error) {
	row := &record{}
	err := t.db.NewSelect().
		Model(row).
		Where("bucket = ?", string(bucket)).
		Where("record_key = ?", key).
		Scan(t.ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registration.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to read record")
	}
	return row.Value, nil
}

func (t *bunTx) Set(bucket registration.Bucket, key string, value []byte) error {
	if t.readOnly {
		return registration.ErrReadOnlyTx
	}

	row := &record{
		Bucket: string(bucket),
		Key:    key,
		Value:  value,
	}

	if _, err := t.db.NewInsert().
		Model(row).
		On("CONFLICT (bucket, record_key) DO UPDATE").
		Set("record_value = EXCLUDED.record_value").
		Exec(t.ctx); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to write record")
	}
	return nil
}

func (t *bunTx) Delete(bucket registration.Bucket, key string) error {
	if t.readOnly {
		return registration.ErrReadOnlyTx
	}

	res, err := t.db.NewDelete().
		Model((*record)(nil)).
		Where("bucket = ?", string(bucket)).
		Where("record_key = ?", key).
		Exec(t.ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to delete record")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to read delete result")
	}
	if n == 0 {
		return registration.ErrKeyNotFound
	}
	return nil
}

func (t *bunTx) Scan(bucket registration.Bucket, fn func(key string, value []byte) error) error {
	var rows []record
	err := t.db.NewSelect().
		Model(&rows).
		Where("bucket = ?", string(bucket)).
		Order("record_key ASC").
		Scan(t.ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to scan bucket")
	}

	for _, row := range rows {
		if err := fn(row.Key, row.Value); err != nil {
			return err
		}
	}
	return nil
}
