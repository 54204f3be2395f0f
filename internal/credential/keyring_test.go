package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		s := NewFileStore(t.TempDir(), "test-key")

		require.NoError(t, s.Set("GEMINI_API_KEY", "secret-value"))

		got, err := s.Get("GEMINI_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "secret-value", got)
	})

	t.Run("missing key", func(t *testing.T) {
		s := NewFileStore(t.TempDir(), "test-key")

		_, err := s.Get("TELEGRAM_BOT_TOKEN")
		require.Error(t, err)
		assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
		assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	})
}
