package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// CalculateStringSHA256 computes the SHA-256 hash of a string.
func CalculateStringSHA256(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// CacheKey derives a fixed-length store key from a page URL.
func CacheKey(prefix, pageURL string) []byte {
	return []byte(prefix + CalculateStringSHA256(pageURL))
}
