package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArrayStore() *KeyringStore {
	ring := keyring.NewArrayKeyring(nil)
	return &KeyringStore{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func TestStores(t *testing.T) {
	stores := map[string]TokenStore{
		"keyring": newArrayStore(),
		"memory":  NewMemoryStore(),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get()
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set("tok-1"))
			got, err := s.Get()
			require.NoError(t, err)
			assert.Equal(t, "tok-1", got)

			require.NoError(t, s.Set("tok-2"))
			got, err = s.Get()
			require.NoError(t, err)
			assert.Equal(t, "tok-2", got)

			require.NoError(t, s.Delete())
			_, err = s.Get()
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Delete(), "deleting a missing token")
		})
	}
}
