package registration_test

import (
	"context"
	"testing"

	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsMembership(t *testing.T) {
	store := memstore.New()
	groups := registration.NewGroups(store)
	ctx := context.Background()

	require.NoError(t, groups.AddMember(ctx, registration.GroupAdmin, "user-1"))
	require.NoError(t, groups.AddMember(ctx, registration.GroupAdmin, "user-2"))
	require.NoError(t, groups.AddMember(ctx, "g:staff", "user-1"))

	t.Run("both directions agree", func(t *testing.T) {
		members, err := groups.MembersOf(ctx, registration.GroupAdmin)
		require.NoError(t, err)
		assert.Equal(t, []string{"user-1", "user-2"}, members)

		of, err := groups.GroupsOf(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"g:admin", "g:staff"}, of)
	})

	t.Run("adding twice keeps one entry", func(t *testing.T) {
		require.NoError(t, groups.AddMember(ctx, registration.GroupAdmin, "user-1"))
		members, err := groups.MembersOf(ctx, registration.GroupAdmin)
		require.NoError(t, err)
		assert.Equal(t, []string{"user-1", "user-2"}, members)
	})

	t.Run("remove updates both directions", func(t *testing.T) {
		require.NoError(t, groups.RemoveMember(ctx, registration.GroupAdmin, "user-1"))

		members, err := groups.MembersOf(ctx, registration.GroupAdmin)
		require.NoError(t, err)
		assert.Equal(t, []string{"user-2"}, members)

		of, err := groups.GroupsOf(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"g:staff"}, of)
	})

	t.Run("empty sets read as nil", func(t *testing.T) {
		members, err := groups.MembersOf(ctx, "g:nobody")
		require.NoError(t, err)
		assert.Nil(t, members)
	})

	t.Run("removing the last member drops the key", func(t *testing.T) {
		require.NoError(t, groups.RemoveMember(ctx, "g:staff", "user-1"))

		of, err := groups.GroupsOf(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, of)
	})
}
