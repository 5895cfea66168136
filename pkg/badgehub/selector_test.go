package badgehub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

func TestParseRevisionSelector(t *testing.T) {
	t.Run("aliases", func(t *testing.T) {
		sel, err := badgehub.ParseRevisionSelector("draft")
		require.NoError(t, err)
		assert.True(t, sel.IsDraft())
		assert.Equal(t, "draft", sel.String())

		sel, err = badgehub.ParseRevisionSelector("latest")
		require.NoError(t, err)
		assert.True(t, sel.IsLatest())
		assert.Equal(t, "latest", sel.String())
	})

	t.Run("numbered revisions", func(t *testing.T) {
		for segment, want := range map[string]int{"rev0": 0, "rev7": 7, "rev42": 42} {
			sel, err := badgehub.ParseRevisionSelector(segment)
			require.NoError(t, err, segment)
			n, ok := sel.Number()
			assert.True(t, ok)
			assert.Equal(t, want, n)
			assert.Equal(t, segment, sel.String())
		}
	})

	t.Run("rejects malformed segments", func(t *testing.T) {
		for _, segment := range []string{"", "rev", "rev-1", "rev+1", "rev1.5", "revabc", "0", "Draft", "DRAFT", "newest"} {
			_, err := badgehub.ParseRevisionSelector(segment)
			assert.ErrorIs(t, err, badgehub.ErrInvalidSelector, "segment %q", segment)
		}
	})

	t.Run("aliases carry no number", func(t *testing.T) {
		_, ok := badgehub.SelectDraft().Number()
		assert.False(t, ok)
		_, ok = badgehub.SelectLatest().Number()
		assert.False(t, ok)
	})
}
