package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// shareAlphabet avoids ambiguous characters (0/O, 1/l/I) so tokens survive
// being read aloud or retyped from a slide.
const shareAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewShareID returns an 8-character opaque share token, drawn from
// crypto/rand so it is not guessable from sequential workshop IDs.
func NewShareID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	token := make([]byte, 8)
	for i, b := range bytes {
		token[i] = shareAlphabet[int(b)%len(shareAlphabet)]
	}
	return string(token)
}
