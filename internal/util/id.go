package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-char hex id used as primary key for every record.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
