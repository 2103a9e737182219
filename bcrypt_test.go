package registration_test

import (
	"testing"

	registration "github.com/goliatone/go-registration"
	"github.com/stretchr/testify/assert"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true, // bcrypt can hash empty strings!
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := registration.HashPassword(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)

			err = registration.ComparePasswordAndHash(tt.password, hash)
			assert.NoError(t, err)
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "testPassword123!"
	hash, err := registration.HashPassword(password)
	assert.NoError(t, err)

	t.Run("matching password", func(t *testing.T) {
		assert.NoError(t, registration.ComparePasswordAndHash(password, hash))
	})

	t.Run("wrong password", func(t *testing.T) {
		err := registration.ComparePasswordAndHash("wrongPassword", hash)
		assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
	})

	t.Run("garbage hash", func(t *testing.T) {
		err := registration.ComparePasswordAndHash(password, "not-a-hash")
		assert.Error(t, err)
	})
}

func TestRandomPasswordHash(t *testing.T) {
	hash := registration.RandomPasswordHash()
	assert.NotEmpty(t, hash)

	err := registration.ComparePasswordAndHash("anything", hash)
	assert.ErrorIs(t, err, registration.ErrMismatchedHashAndPassword)
}
