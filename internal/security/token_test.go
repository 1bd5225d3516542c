package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("has requested length and alphabet", func(t *testing.T) {
		token, err := GenerateToken(DefaultTokenLength)
		require.NoError(t, err)
		assert.Len(t, token, DefaultTokenLength)

		for _, r := range token {
			assert.True(t, strings.ContainsRune(TokenAlphabet, r), "unexpected character %q", r)
		}
	})

	t.Run("generations differ", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 100; i++ {
			token, err := GenerateToken(DefaultTokenLength)
			require.NoError(t, err)

			_, dup := seen[token]
			require.False(t, dup, "duplicate token %q", token)
			seen[token] = struct{}{}
		}
	})

	t.Run("rejects non-positive length", func(t *testing.T) {
		_, err := GenerateToken(0)
		require.Error(t, err)

		_, err = GenerateToken(-5)
		require.Error(t, err)
	})
}
