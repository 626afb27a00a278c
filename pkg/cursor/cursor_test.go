package cursor

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCodec("s3cret")
	key := "2024-01-02T03:04:05.0000000Z|t-1"
	token := c.Encode("inbox", key)

	require.NotContains(t, token, "=")
	require.NotContains(t, token, "+")
	require.NotContains(t, token, "/")

	got, ok := c.Decode("inbox", token)
	require.True(t, ok)
	require.Equal(t, key, got)

	require.Equal(t, token, c.Encode("inbox", key), "encoding is deterministic")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	c := NewCodec("s3cret")
	for _, token := range []string{
		"",
		"   ",
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not cbor")),
	} {
		_, ok := c.Decode("inbox", token)
		require.False(t, ok, token)
	}
}

func TestDecodeRejectsForeignKey(t *testing.T) {
	t.Parallel()

	token := NewCodec("one").Encode("inbox", "a|b")
	_, ok := NewCodec("two").Decode("inbox", token)
	require.False(t, ok)
}

func TestDecodeRejectsTampering(t *testing.T) {
	t.Parallel()

	c := NewCodec("k")
	token := c.Encode("inbox", "2024|t-1")
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	idx := strings.Index(string(raw), "2024")
	require.GreaterOrEqual(t, idx, 0)
	raw[idx] = '3'
	_, ok := c.Decode("inbox", base64.RawURLEncoding.EncodeToString(raw))
	require.False(t, ok)
}

func TestDecodeRejectsKeyWithoutSeparator(t *testing.T) {
	t.Parallel()

	c := NewCodec("k")
	_, ok := c.Decode("inbox", c.Encode("inbox", "no-separator"))
	require.False(t, ok)
}

func TestDecodeRejectsOtherScope(t *testing.T) {
	t.Parallel()

	c := NewCodec("k")
	token := c.Encode("timeline/t-1", "2024|e-1")
	_, ok := c.Decode("timeline/t-2", token)
	require.False(t, ok)
	_, ok = c.Decode("inbox", token)
	require.False(t, ok)
	key, ok := c.Decode("timeline/t-1", token)
	require.True(t, ok)
	require.Equal(t, "2024|e-1", key)
}
