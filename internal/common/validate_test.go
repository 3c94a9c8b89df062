package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("passw0rd"))
	assert.Error(t, ValidatePassword("pa5s"))
	assert.Error(t, ValidatePassword("onlyletters"))
	assert.Error(t, ValidatePassword("12345678"))
	assert.True(t, IsKind(ValidatePassword("short1"), KindBadRequest))

	long := make([]byte, MaxPasswordLen+1)
	for i := range long {
		long[i] = 'a'
	}
	long[0] = '1'
	assert.Error(t, ValidatePassword(string(long)))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.Error(t, ValidateEmail("Alice <alice@example.com>"))
	assert.Error(t, ValidateEmail("alice"))
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Alice"))
	assert.Error(t, ValidateName("   "))
	assert.Error(t, ValidateName(string(make([]rune, MaxNameLen+1))))
}
