package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_SealOpen(t *testing.T) {
	keys := []string{
		strings.Repeat("ab", 32), // hex, used as-is
		"a passphrase that is not hex",
	}
	for _, key := range keys {
		box, err := NewBox(key)
		require.NoError(t, err)

		sealed, err := box.Seal([]byte("shpat_123"))
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "shpat_123")

		plain, err := box.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "shpat_123", string(plain))
	}
}

func TestBox_SealUsesFreshNonce(t *testing.T) {
	box, err := NewBox("key")
	require.NoError(t, err)

	a, err := box.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := box.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_OpenFailures(t *testing.T) {
	box, err := NewBox("key-one")
	require.NoError(t, err)
	other, err := NewBox("key-two")
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("token"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = box.Open(sealed[:10])
	assert.ErrorIs(t, err, ErrDecrypt)

	sealed[len(sealed)-1] ^= 0xff
	_, err = box.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewBox_EmptyKey(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
