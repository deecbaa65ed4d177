package license

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	t.Run("shape", func(t *testing.T) {
		t.Parallel()

		key, err := NewKey(PrefixAPIKey)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(key, "oak_"))
		// 20 random bytes encode to 32 base32 characters.
		assert.Len(t, key, len(PrefixAPIKey)+32)
		assert.Equal(t, strings.ToLower(key), key)
	})

	t.Run("charset is base32", func(t *testing.T) {
		t.Parallel()

		key, err := NewKey(PrefixLicenseKey)
		require.NoError(t, err)

		body := strings.TrimPrefix(key, PrefixLicenseKey)
		for _, r := range body {
			ok := (r >= 'a' && r <= 'z') || (r >= '2' && r <= '7')
			assert.True(t, ok, "unexpected character %q in %s", r, key)
		}
	})

	t.Run("no repeats across many keys", func(t *testing.T) {
		t.Parallel()

		const n = 10_000
		seen := make(map[string]struct{}, n)
		for range n {
			key, err := NewKey(PrefixLicenseKey)
			require.NoError(t, err)

			_, dup := seen[key]
			require.False(t, dup, "duplicate key generated: %s", key)
			seen[key] = struct{}{}
		}
	})
}
