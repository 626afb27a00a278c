// Package cursor encodes pagination positions as opaque, URL-safe,
// self-validating tokens.
//
// A token is the unpadded base64url encoding of a deterministic CBOR body
// carrying a scope, the sort key and a keyed BLAKE3 tag over both. The scope
// names the listing the cursor belongs to, so a token minted for one listing
// is absent in any other. Tokens that do not decode, fail the tag check, or
// carry a malformed key are reported as absent rather than as errors.
package cursor

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

const (
	version     = 2
	tagSize     = 16
	keyContext  = "supportdesk 2024 cursor tag key"
	keySeparate = "|"
)

type body struct {
	Version int    `cbor:"v"`
	Scope   string `cbor:"s"`
	SortKey string `cbor:"k"`
	Tag     []byte `cbor:"m"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cursor: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cursor: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec signs and verifies cursor tokens with a key derived from a secret.
type Codec struct {
	key []byte
}

// NewCodec derives the tag key from secret. An empty secret still yields a
// working codec; tokens are then only protected against corruption.
func NewCodec(secret string) *Codec {
	key := make([]byte, 32)
	blake3.DeriveKey(keyContext, []byte(secret), key)
	return &Codec{key: key}
}

// Encode turns a sort key within scope into a token.
func (c *Codec) Encode(scope, sortKey string) string {
	raw, err := encMode.Marshal(body{Version: version, Scope: scope, SortKey: sortKey, Tag: c.tag(scope, sortKey)})
	if err != nil {
		// Marshalling a struct of strings and bytes cannot fail.
		panic("cursor: encode: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode returns the sort key carried by token. ok is false for empty,
// corrupted, forged or malformed tokens and for tokens minted for another
// scope.
func (c *Codec) Decode(scope, token string) (sortKey string, ok bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	var b body
	if err := decMode.Unmarshal(raw, &b); err != nil {
		return "", false
	}
	if b.Version != version || b.Scope != scope || !strings.Contains(b.SortKey, keySeparate) {
		return "", false
	}
	if subtle.ConstantTimeCompare(b.Tag, c.tag(b.Scope, b.SortKey)) != 1 {
		return "", false
	}
	return b.SortKey, true
}

func (c *Codec) tag(scope, sortKey string) []byte {
	h, err := blake3.NewKeyed(c.key)
	if err != nil {
		// The key is always 32 bytes.
		panic("cursor: keyed hash: " + err.Error())
	}
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(sortKey))
	return h.Sum(nil)[:tagSize]
}
