package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey builds a stable redis key from a namespace and parts.
func CacheKey(namespace string, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return namespace + ":" + hex.EncodeToString(h[:])[:16]
}
