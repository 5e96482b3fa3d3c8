package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline/queueserver/pkg/qsapi"
)

func itemsWithUIDs(uids ...string) []*qsapi.Item {
	items := make([]*qsapi.Item, 0, len(uids))
	for _, uid := range uids {
		items = append(items, &qsapi.Item{ItemType: qsapi.ItemTypePlan, Name: "count", ItemUID: uid})
	}
	return items
}

func TestResolveItemUID(t *testing.T) {
	items := itemsWithUIDs(
		"f47ac10b-58cc-4372-a567-0e02b2c3d479",
		"f47ac10b-9999-4372-a567-0e02b2c3d479",
		"a1b2c3d4-0000-4000-8000-000000000000",
	)

	t.Run("full UUID is verified and returned as-is", func(t *testing.T) {
		uid, err := ResolveItemUID(items, "a1b2c3d4-0000-4000-8000-000000000000")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4-0000-4000-8000-000000000000", uid)
	})

	t.Run("full UUID not in the queue", func(t *testing.T) {
		_, err := ResolveItemUID(items, "00000000-0000-4000-8000-000000000000")
		require.Error(t, err)
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("unique prefix resolves", func(t *testing.T) {
		uid, err := ResolveItemUID(items, "a1b2c3")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4-0000-4000-8000-000000000000", uid)
	})

	t.Run("prefix shorter than the minimum is rejected", func(t *testing.T) {
		_, err := ResolveItemUID(items, "a1b2c")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := ResolveItemUID(items, "f47ac10b")
		require.Error(t, err)
		assert.True(t, IsAmbiguousError(err))

		ambiguous, ok := err.(*AmbiguousError)
		require.True(t, ok)
		assert.Len(t, ambiguous.Matches, 2)
		assert.Contains(t, FormatAmbiguousError(ambiguous), "matches 2 items")
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := ResolveItemUID(items, "deadbeef")
		require.Error(t, err)
		assert.True(t, IsNotFoundError(err))
	})
}
