package instance

import (
	"os"

	"github.com/angelmondragon/pullstream-backend/pkg/env"
)

// GetID returns an identifier for this process, preferring an explicit
// override, then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.First("PULLSTREAM_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
