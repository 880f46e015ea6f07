package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_StartupFailureReturnsAfterCleanup(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "orchestrator.log")
	t.Setenv("LOG_FILE", logPath)
	t.Setenv("DATABASE_URL", "postgres://%zz")

	ok := run()

	assert.False(t, ok)
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Fatal error connecting to Postgres")
}
