package pipeline

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenGenerator produces unguessable strings safe to use as a URL path segment.
type TokenGenerator interface {
	NewToken() (string, error)
}

type randomTokens struct {
	size int
}

// NewTokenGenerator returns a generator reading size bytes from crypto/rand per
// token, encoded as unpadded base64url.
func NewTokenGenerator(size int) TokenGenerator {
	if size < 16 {
		size = 32
	}
	return randomTokens{size: size}
}

func (g randomTokens) NewToken() (string, error) {
	b := make([]byte, g.size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
