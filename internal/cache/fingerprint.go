package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a stable cache key component from request parameters.
// Parts are joined with a separator before hashing so ("ab","c") and
// ("a","bc") fingerprint differently.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}
