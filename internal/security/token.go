package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TokenAlphabet is the set of characters access tokens are drawn from.
const TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultTokenLength is the length of tokens issued to remote clients.
const DefaultTokenLength = 20

// GenerateToken returns a cryptographically random alphanumeric string of
// n characters, suitable for use as a shared-secret access token.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}

	max := big.NewInt(int64(len(TokenAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = TokenAlphabet[idx.Int64()]
	}

	return string(buf), nil
}
