package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  Key
		enc  string
	}{
		{"simple", NewKey("users", "u1"), "users/u1"},
		{"slash in part", NewKey("rate_limit", "a/b"), "rate_limit/a%2Fb"},
		{"space and unicode", NewKey("users_by_email", "é x"), "users_by_email/%C3%A9%20x"},
		{"ipv6", NewKey("rate_limit", "2001:db8::1"), "rate_limit/2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.enc, EncodeKey(tt.key))
			assert.Equal(t, tt.enc, tt.key.String())

			decoded, err := DecodeKey(tt.enc)
			require.NoError(t, err)
			assert.Equal(t, tt.key, decoded)
		})
	}
}

func TestDecodeKey_Invalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeKey("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = DecodeKey("users/%zz")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPage(t *testing.T) {
	t.Parallel()

	keys := []string{"a", "b", "c", "d"}

	got, next := page(keys, "", 0)
	assert.Equal(t, keys, got)
	assert.Empty(t, next)

	got, next = page(keys, "", 3)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, "c", next)

	got, next = page(keys, "c", 3)
	assert.Equal(t, []string{"d"}, got)
	assert.Empty(t, next)

	got, next = page(keys, "b", 2)
	assert.Equal(t, []string{"c", "d"}, got)
	assert.Empty(t, next)
}

func TestListPrefix(t *testing.T) {
	t.Parallel()

	assert.Empty(t, listPrefix(nil))
	assert.Equal(t, "languages/", listPrefix(NewKey("languages")))
}
