package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Refresh tokens are high entropy JWTs longer than bcrypt input limit
// So sha256 is enough and keeps rotation cheap
func hashRefresh(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Empty stored hash belongs to session which token was never signed, it matches nothing
func refreshMatches(storedHash string, token string) bool {
	if storedHash == "" || token == "" {
		return false
	}

	presented := hashRefresh(token)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(presented)) == 1
}
