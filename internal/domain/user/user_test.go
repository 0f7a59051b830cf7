package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	t.Run("valid user", func(t *testing.T) {
		u, err := NewUser("alice@example.com", "Alice", "s3cretpass")
		require.NoError(t, err)
		assert.NotEmpty(t, u.PasswordHash)
		assert.NotEqual(t, "s3cretpass", u.PasswordHash)
		assert.NoError(t, u.CheckPassword("s3cretpass"))
		assert.Error(t, u.CheckPassword("wrong"))
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := NewUser("not-an-email", "Alice", "s3cretpass")
		assert.Error(t, err)
	})

	t.Run("short password", func(t *testing.T) {
		_, err := NewUser("alice@example.com", "Alice", "short")
		assert.Error(t, err)
	})

	t.Run("empty display name", func(t *testing.T) {
		_, err := NewUser("alice@example.com", "", "s3cretpass")
		assert.Error(t, err)
	})
}
