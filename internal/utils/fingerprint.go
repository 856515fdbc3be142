package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

const fingerprintLength = 16

// Fingerprint derives the click deduplication key from request metadata.
// It is not a visitor identifier: different visitors behind one NAT with the
// same browser collapse to one key.
func Fingerprint(userAgent, ipAddress, landingPage string) string {
	sum := sha256.Sum256([]byte(userAgent + ipAddress + landingPage))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

// NewSessionID returns 16 random bytes from r, hex encoded.
func NewSessionID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read session entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RandomString returns n characters drawn uniformly from alphabet using r.
func RandomString(r io.Reader, alphabet string, n int) (string, error) {
	if n <= 0 || alphabet == "" {
		return "", nil
	}
	if r == nil {
		r = rand.Reader
	}
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		num, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[num.Int64()]
	}
	return string(out), nil
}
