package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 100_000
	saltLen        = 16
	digestLen      = 32
)

// HashPassword derives a PBKDF2-HMAC-SHA256 digest with a random salt and
// encodes it as "salt_hex:digest_hex".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, hashIterations, digestLen, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(digest), nil
}

// VerifyPassword reports whether password matches an encoded hash. Malformed
// hashes never match.
func VerifyPassword(encoded, password string) bool {
	saltHex, digestHex, found := strings.Cut(encoded, ":")
	if !found {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, hashIterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
