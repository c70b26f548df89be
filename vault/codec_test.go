package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
}

func TestCodec_RoundTrip(t *testing.T) {
	c, err := NewCodec(testKey(), "")
	require.NoError(t, err)

	enc, err := c.Encrypt("consumer-secret")
	require.NoError(t, err)
	assert.NotContains(t, enc, "consumer-secret")

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "consumer-secret", dec)

	again, err := c.Encrypt("consumer-secret")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonce must be random per encryption")
}

func TestNewCodec_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewCodec(base64.StdEncoding.EncodeToString([]byte("short")), "")
	assert.Error(t, err)

	_, err = NewCodec("not base64!!", "")
	assert.Error(t, err)
}

func TestCodec_DecryptFailures(t *testing.T) {
	c, err := NewCodec(testKey(), "")
	require.NoError(t, err)

	for _, in := range []string{"", "%%%", base64.StdEncoding.EncodeToString([]byte("tiny"))} {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, ErrDecryption, in)
	}

	other, err := NewCodec(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("z", 32))), "")
	require.NoError(t, err)
	enc, err := other.Encrypt("passkey")
	require.NoError(t, err)
	_, err = c.Decrypt(enc)
	assert.ErrorIs(t, err, ErrDecryption)

	noKey, err := NewCodec("", "")
	require.NoError(t, err)
	_, err = noKey.Decrypt(enc)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestLegacyKey(t *testing.T) {
	k := LegacyKey("abc")
	assert.Len(t, k, 32)
	assert.Equal(t, "abc"+strings.Repeat("0", 29), string(k))

	long := LegacyKey(strings.Repeat("x", 40))
	assert.Equal(t, strings.Repeat("x", 32), string(long))
}

func TestCodec_LegacyFallbackOnlyWhenAllowed(t *testing.T) {
	legacySecret := "old-app-secret"
	legacyOnly := &Codec{key: LegacyKey(legacySecret)}
	enc, err := legacyOnly.Encrypt("client-secret")
	require.NoError(t, err)

	c, err := NewCodec(testKey(), legacySecret)
	require.NoError(t, err)

	_, err = c.DecryptWithFallback(enc, false)
	assert.ErrorIs(t, err, ErrDecryption)

	res, err := c.DecryptWithFallback(enc, true)
	require.NoError(t, err)
	assert.True(t, res.Legacy)
	assert.Equal(t, "client-secret", res.Plaintext)

	canonical, err := c.Encrypt("client-secret")
	require.NoError(t, err)
	res, err = c.DecryptWithFallback(canonical, true)
	require.NoError(t, err)
	assert.False(t, res.Legacy)
}

func TestCodec_Reseal(t *testing.T) {
	legacySecret := "old-app-secret"
	legacyOnly := &Codec{key: LegacyKey(legacySecret)}
	old, err := legacyOnly.Encrypt("passkey")
	require.NoError(t, err)

	c, err := NewCodec(testKey(), legacySecret)
	require.NoError(t, err)

	out, resealed, err := c.Reseal(old)
	require.NoError(t, err)
	assert.True(t, resealed)
	pt, err := c.Decrypt(out)
	require.NoError(t, err)
	assert.Equal(t, "passkey", pt)

	again, resealed, err := c.Reseal(out)
	require.NoError(t, err)
	assert.False(t, resealed)
	assert.Equal(t, out, again)

	empty, resealed, err := c.Reseal("")
	require.NoError(t, err)
	assert.False(t, resealed)
	assert.Empty(t, empty)

	_, _, err = c.Reseal("bm90LWVuY3J5cHRlZA==")
	assert.ErrorIs(t, err, ErrDecryption)
}
