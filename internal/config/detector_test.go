// internal/config/detector_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectBackendType(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"redis", "backend:\n  type: \"redis\"\n", "redis"},
		{"dynamodb", "backend:\n  type: \"dynamodb\"\n", "dynamodb"},
		{"scylla_alias", "backend:\n  type: \"scylla\"\n", "scylladb"},
		{"case_insensitive", "backend:\n  type: \"  DynamoDB \"\n", "dynamodb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			backendType, err := DetectBackendType(filepath.Join(dir, "config.yaml"))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, backendType)

			backendType, err = DetectBackendType(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, backendType, "directory lookup")
		})
	}

	t.Run("Environment Override", func(t *testing.T) {
		t.Setenv("QUORUMGUARD_BACKEND_TYPE", "dynamo")
		backendType, err := DetectBackendType("/does/not/exist")
		require.NoError(t, err)
		assert.Equal(t, "dynamodb", backendType)
	})

	t.Run("Missing Backend Type", func(t *testing.T) {
		dir := writeConfig(t, "observability:\n  serviceName: \"x\"\n")
		_, err := DetectBackendType(dir)
		assert.ErrorIs(t, err, ErrNoBackendType)
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		dir := writeConfig(t, "backend: [\n")
		_, err := DetectBackendType(dir)
		assert.Error(t, err)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := DetectBackendType(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Empty Directory", func(t *testing.T) {
		_, err := DetectBackendType(t.TempDir())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Alternate File Name", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "quorum-guard.yml"), []byte("backend:\n  type: memory\n"), 0644))
		backendType, err := DetectBackendType(dir)
		require.NoError(t, err)
		assert.Equal(t, "memory", backendType)
	})
}
