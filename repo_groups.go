package registration

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/goliatone/go-errors"
)

// Groups is the repository for group memberships. Both directions of the
// relation are stored, and every mutation updates the two buckets in the
// same transaction so they can never disagree.
type Groups interface {
	AddMember(ctx context.Context, group, userID string) error
	AddMemberTx(ctx context.Context, tx Tx, group, userID string) error
	RemoveMember(ctx context.Context, group, userID string) error
	RemoveMemberTx(ctx context.Context, tx Tx, group, userID string) error
	MembersOf(ctx context.Context, group string) ([]string, error)
	MembersOfTx(ctx context.Context, tx Tx, group string) ([]string, error)
	GroupsOf(ctx context.Context, userID string) ([]string, error)
	GroupsOfTx(ctx context.Context, tx Tx, userID string) ([]string, error)
}

type groups struct {
	store Store
}

// NewGroups builds the repository over the given store.
func NewGroups(store Store) Groups {
	return &groups{store: store}
}

func (g *groups) AddMember(ctx context.Context, group, userID string) error {
	return g.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return g.AddMemberTx(ctx, tx, group, userID)
	})
}

func (g *groups) AddMemberTx(ctx context.Context, tx Tx, group, userID string) error {
	if err := g.updateSet(tx, BucketGroupMembers, group, userID, true); err != nil {
		return err
	}
	return g.updateSet(tx, BucketMemberGroups, userID, group, true)
}

func (g *groups) RemoveMember(ctx context.Context, group, userID string) error {
	return g.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return g.RemoveMemberTx(ctx, tx, group, userID)
	})
}

func (g *groups) RemoveMemberTx(ctx context.Context, tx Tx, group, userID string) error {
	if err := g.updateSet(tx, BucketGroupMembers, group, userID, false); err != nil {
		return err
	}
	return g.updateSet(tx, BucketMemberGroups, userID, group, false)
}

func (g *groups) MembersOf(ctx context.Context, group string) ([]string, error) {
	var out []string
	err := g.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = g.MembersOfTx(ctx, tx, group)
		return err
	})
	return out, err
}

func (g *groups) MembersOfTx(ctx context.Context, tx Tx, group string) ([]string, error) {
	return g.readSet(tx, BucketGroupMembers, group)
}

func (g *groups) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := g.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = g.GroupsOfTx(ctx, tx, userID)
		return err
	})
	return out, err
}

func (g *groups) GroupsOfTx(ctx context.Context, tx Tx, userID string) ([]string, error) {
	return g.readSet(tx, BucketMemberGroups, userID)
}

func (g *groups) readSet(tx Tx, bucket Bucket, key string) ([]string, error) {
	raw, err := tx.Get(bucket, key)
	if err != nil {
		if IsKeyNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode membership set").
			WithMetadata(map[string]any{"bucket": string(bucket), "key": key})
	}
	return members, nil
}

func (g *groups) updateSet(tx Tx, bucket Bucket, key, member string, add bool) error {
	members, err := g.readSet(tx, bucket, key)
	if err != nil {
		return err
	}

	next := make([]string, 0, len(members)+1)
	for _, m := range members {
		if m != member {
			next = append(next, m)
		}
	}
	if add {
		next = append(next, member)
	}

	if len(next) == 0 {
		if err := tx.Delete(bucket, key); err != nil && !IsKeyNotFound(err) {
			return err
		}
		return nil
	}

	sort.Strings(next)
	raw, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode membership set")
	}
	return tx.Set(bucket, key, raw)
}
