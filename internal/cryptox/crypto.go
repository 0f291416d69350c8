// Package cryptox wraps the password hashing used for account credentials.
// Hashes are bcrypt with the default cost; the stored value embeds the salt
// and cost, so verification needs no extra parameters.
package cryptox

import (
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLen is the longest password bcrypt accepts.
const MaxPasswordLen = 72

// HashPassword derives a salted hash suitable for storage.
func HashPassword(password []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, password) == nil
}
