package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// HashAlgorithm names the digest persisted for every opaque token. Stored sessions and
// capability tokens are looked up by this digest, so changing it requires a versioned
// migration of the sessions and tokens tables.
const HashAlgorithm = "sha256-hex"

// Raw byte lengths per token category.
const (
	RefreshBytes      = 48
	CSRFBytes         = 32
	VerificationBytes = 32
	ResetBytes        = 32
)

const minBytes = 16

// ErrInvalidLength is returned when a caller requests fewer than 16 random bytes.
var ErrInvalidLength = errors.New("token length must be at least 16 bytes")

// Generate returns byteLength bytes from crypto/rand encoded as unpadded base64url.
func Generate(byteLength int) (string, error) {
	if byteLength < minBytes {
		return "", ErrInvalidLength
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the lower-case hex SHA-256 digest of raw. Only this value is persisted.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two digests match without leaking timing about the position of
// the first difference.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Matches reports whether raw hashes to digest.
func Matches(raw, digest string) bool {
	if raw == "" || digest == "" {
		return false
	}
	return Equal(Hash(raw), digest)
}
