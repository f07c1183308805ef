// Package share issues the unguessable tokens that expose a plan read-only.
package share

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// TokenBytes is the entropy carried by each token.
const TokenBytes = 24

// Tokens produces share tokens from a random source.
type Tokens struct {
	rand io.Reader
}

func NewTokens() *Tokens {
	return &Tokens{rand: rand.Reader}
}

// New returns a URL-safe token of TokenBytes random bytes.
func (t *Tokens) New() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(t.rand, buf); err != nil {
		return "", fmt.Errorf("share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Path builds the public path for token under base, e.g. "/share/<token>".
func Path(base, token string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + token
}
