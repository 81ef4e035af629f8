package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("SALYMED_INSTANCE_ID", "api-7")
	require.Equal(t, "api-7", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("SALYMED_INSTANCE_ID", "")
	require.NotEmpty(t, GetID())
}

func TestGetIDUsesRevision(t *testing.T) {
	t.Setenv("SALYMED_INSTANCE_ID", "")
	t.Setenv("K_REVISION", "salymed-api-00042")
	require.Equal(t, "salymed-api-00042", GetID())
}
