// Package id generates short random identifiers for deployments.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// Generate returns <prefix>_<12 hex chars>, e.g. "deploy_3f9a0c1b22de".
func Generate(prefix string) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		ts := strconv.FormatInt(time.Now().UnixNano(), 16)
		return prefix + "_" + ts[len(ts)-12:]
	}
	return prefix + "_" + hex.EncodeToString(b)
}
