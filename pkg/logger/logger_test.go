package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"stagecost/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	saved, savedSugar := Log, sugar
	t.Cleanup(func() {
		Log, sugar = saved, savedSugar
	})
}

func TestRunID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, "-\t", tracePrefix(ctx))

	ctx = WithRunID(ctx, "run-1")
	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "run-1\t", tracePrefix(ctx))
}

func TestInit_FileOutput(t *testing.T) {
	restoreLogger(t)
	path := filepath.Join(t.TempDir(), "logs", "stagecost.log")

	require.NoError(t, Init(config.LoggerConfig{
		Level:  "warn",
		Output: "file",
		File:   config.LoggerFileConfig{Path: path, MaxSizeMB: 1},
	}))
	InfoCtx(WithRunID(context.Background(), "run-7"), "hidden %d", 1)
	WarnCtx(WithRunID(context.Background(), "run-7"), "shown %d", 2)
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run-7\tshown 2")
	assert.NotContains(t, string(data), "hidden")
}

func TestInit_FileOutputNeedsPath(t *testing.T) {
	restoreLogger(t)
	assert.Error(t, Init(config.LoggerConfig{Output: "file"}))
	assert.Error(t, Init(config.LoggerConfig{Output: "both"}))
}
