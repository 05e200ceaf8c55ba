package instance

import (
	"os"

	"github.com/angelmondragon/jewelpos-backend/pkg/env"
)

// GetID names this process in logs and lock tokens: JEWELPOS_INSTANCE_ID,
// then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
