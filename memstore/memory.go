// Package memstore provides an embedded, in-memory registration.Store.
//
// Transactions stage their writes in an overlay and apply them on commit, so
// a callback that returns an error leaves the store untouched. A single
// writer lock serializes mutations, which gives RunInTx serializable
// semantics without any retry machinery.
package memstore

import (
	"context"
	"sort"
	"sync"

	registration "github.com/goliatone/go-registration"
)

type bucketKey struct {
	bucket registration.Bucket
	key    string
}

// Store is an in-memory registration.Store. The zero value is not usable;
// call New.
type Store struct {
	mu   sync.RWMutex
	data map[bucketKey][]byte
}

var _ registration.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		data: map[bucketKey][]byte{},
	}
}

// RunInTx runs fn inside a writable transaction. Writes are staged and only
// become visible when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx registration.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: map[bucketKey]*[]byte{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for k, v := range tx.staged {
		if v == nil {
			delete(s.data, k)
		} else {
			s.data[k] = *v
		}
	}
	return nil
}

// View runs fn inside a read-only transaction. Writes fail with
// ErrReadOnlyTx.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx registration.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, &memTx{store: s, readOnly: true})
}

// Len reports the number of stored entries in the bucket.
func (s *Store) Len(bucket registration.Bucket) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.data {
		if k.bucket == bucket {
			n++
		}
	}
	return n
}

// memTx overlays staged writes on the store's committed data. A nil staged
// value marks a delete.
type memTx struct {
	store    *Store
	staged   map[bucketKey]*[]byte
	readOnly bool
}

func (t *memTx) Get(bucket registration.Bucket, key string) ([]byte, error) {
	k := bucketKey{bucket: bucket, key: key}

	if !t.readOnly {
		if v, ok := t.staged[k]; ok {
			if v == nil {
				return nil, registration.ErrKeyNotFound
			}
			return clone(*v), nil
		}
	}

	v, ok := t.store.data[k]
	if !ok {
		return nil, registration.ErrKeyNotFound
	}
	return clone(v), nil
}

func (t *memTx) Set(bucket registration.Bucket, key string, value []byte) error {
	if t.readOnly {
		return registration.ErrReadOnlyTx
	}

	v := clone(value)
	t.staged[bucketKey{bucket: bucket, key: key}] = &v
	return nil
}

func (t *memTx) Delete(bucket registration.Bucket, key string) error {
	if t.readOnly {
		return registration.ErrReadOnlyTx
	}

	k := bucketKey{bucket: bucket, key: key}
	if _, err := t.Get(bucket, key); err != nil {
		return err
	}

	t.staged[k] = nil
	return nil
}

func (t *memTx) Scan(bucket registration.Bucket, fn func(key string, value []byte) error) error {
	seen := map[string][]byte{}
	for k, v := range t.store.data {
		if k.bucket == bucket {
			seen[k.key] = v
		}
	}

	if !t.readOnly {
		for k, v := range t.staged {
			if k.bucket != bucket {
				continue
			}
			if v == nil {
				delete(seen, k.key)
			} else {
				seen[k.key] = *v
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn(k, clone(seen[k])); err != nil {
			return err
		}
	}
	return nil
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
