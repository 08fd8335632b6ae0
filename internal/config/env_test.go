package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnvSetsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "APCA_API_KEY_ID=abc123\nAPCA_API_SECRET_KEY=shh\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	unsetEnv(t, "APCA_API_KEY_ID")
	unsetEnv(t, "APCA_API_SECRET_KEY")

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "abc123", os.Getenv("APCA_API_KEY_ID"))
	assert.Equal(t, "shh", os.Getenv("APCA_API_SECRET_KEY"))
}

func TestLoadDotEnvDoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APCA_API_KEY_ID=from_file\n"), 0o600))
	t.Setenv("APCA_API_KEY_ID", "from_env")

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from_env", os.Getenv("APCA_API_KEY_ID"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

// unsetEnv removes key for the rest of the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
