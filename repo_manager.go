package registration

import (
	"context"

	"github.com/goliatone/go-errors"
)

// RepositoryManager aggregates the registration repositories over a single
// store so callers can span several of them inside one transaction.
type RepositoryManager interface {
	Pending() PendingRegistrations
	Confirmed() ConfirmedRegistrations
	Groups() Groups
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Validate() error
	MustValidate()
}

type mngr struct {
	store     Store
	pending   PendingRegistrations
	confirmed ConfirmedRegistrations
	groups    Groups
}

// NewRepositoryManager builds the repositories over the given store.
func NewRepositoryManager(store Store) RepositoryManager {
	return &mngr{
		store:     store,
		pending:   NewPendingRegistrations(store),
		confirmed: NewConfirmedRegistrations(store),
		groups:    NewGroups(store),
	}
}

func (m *mngr) Pending() PendingRegistrations {
	return m.pending
}

func (m *mngr) Confirmed() ConfirmedRegistrations {
	return m.confirmed
}

func (m *mngr) Groups() Groups {
	return m.groups
}

func (m *mngr) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return m.store.RunInTx(ctx, fn)
}

func (m *mngr) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return m.store.View(ctx, fn)
}

func (m *mngr) Validate() error {
	if m.store == nil {
		return errors.New("repository manager requires a store", errors.CategoryOperation)
	}
	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		panic(err)
	}
}
