package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PrefixKey places key under a deployment namespace. An empty prefix
// returns key unchanged.
func PrefixKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// HashKeyPart hashes a user-supplied value (email, IP) before it becomes part
// of a Redis key so raw identifiers never appear in key listings.
func HashKeyPart(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:16])
}
