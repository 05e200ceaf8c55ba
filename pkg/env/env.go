package env

import (
	"os"
	"strings"
)

const prefix = "JEWELPOS_"

// Get prefers the JEWELPOS_-prefixed variable, then the bare name, then fallback.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, prefix)
	if val := strings.TrimSpace(os.Getenv(prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
