package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PGBENCH_TEST_A=from-file\nPGBENCH_TEST_B=from-file\n"), 0o644))

	t.Setenv("ENV_PATH", "")
	t.Setenv("PGBENCH_TEST_B", "preset")
	t.Cleanup(func() { os.Unsetenv("PGBENCH_TEST_A") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("PGBENCH_TEST_A"))
	assert.Equal(t, "preset", os.Getenv("PGBENCH_TEST_B"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	t.Setenv("ENV_PATH", filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, LoadDotEnv(".env"))
}
