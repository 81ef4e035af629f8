package instance

import (
	"os"

	"github.com/salymed/salymed-backend/pkg/env"
)

// GetID identifies the running process in logs: SALYMED_INSTANCE_ID, then the
// Cloud Run revision, then the host name.
func GetID() string {
	if id := env.First("SALYMED_INSTANCE_ID", "K_REVISION"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
