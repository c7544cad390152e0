package util

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeExecutable(t *testing.T) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "test-binary-*")
	require.NoError(t, err)
	tmpFile.Close()
	require.NoError(t, os.Chmod(tmpFile.Name(), 0755))
	return tmpFile.Name()
}

func TestFindBinary(t *testing.T) {
	t.Run("explicit path takes priority over everything", func(t *testing.T) {
		explicit := makeExecutable(t)
		t.Setenv("TEST_BINARY_PATH", "/some/other/path")

		path, err := FindBinary("ls", explicit, "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, explicit, path)
	})

	t.Run("explicit path that is not executable is an error", func(t *testing.T) {
		tmpFile, err := os.CreateTemp(t.TempDir(), "test-binary-*")
		require.NoError(t, err)
		tmpFile.Close()
		require.NoError(t, os.Chmod(tmpFile.Name(), 0644))

		_, err = FindBinary("ls", tmpFile.Name(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not executable")
	})

	t.Run("finds executable binary via environment variable", func(t *testing.T) {
		envBinary := makeExecutable(t)
		t.Setenv("TEST_BINARY_PATH", envBinary)

		path, err := FindBinary("nonexistent-binary", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, envBinary, path)
	})

	t.Run("env var takes priority over PATH", func(t *testing.T) {
		envBinary := makeExecutable(t)
		t.Setenv("TEST_BINARY_PATH", envBinary)

		// "ls" exists on PATH, but env var should take priority
		path, err := FindBinary("ls", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, envBinary, path)
	})

	t.Run("finds binary on PATH when no env var", func(t *testing.T) {
		path, err := FindBinary("ls", "", "")
		require.NoError(t, err)
		assert.NotEmpty(t, path)
		assert.Contains(t, path, "ls")
	})

	t.Run("returns error when binary not found", func(t *testing.T) {
		path, err := FindBinary("definitely-nonexistent-binary-12345", "", "")
		assert.Error(t, err)
		assert.Empty(t, path)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ignores env var if file does not exist", func(t *testing.T) {
		t.Setenv("TEST_BINARY_PATH", "/nonexistent/path/to/binary")

		path, err := FindBinary("ls", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.NotEqual(t, "/nonexistent/path/to/binary", path)
		assert.Contains(t, path, "ls")
	})

	t.Run("ignores env var if file is not executable", func(t *testing.T) {
		tmpFile, err := os.CreateTemp(t.TempDir(), "test-binary-*")
		require.NoError(t, err)
		tmpFile.Close()
		require.NoError(t, os.Chmod(tmpFile.Name(), 0644))

		t.Setenv("TEST_BINARY_PATH", tmpFile.Name())

		path, err := FindBinary("ls", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.NotEqual(t, tmpFile.Name(), path)
		assert.Contains(t, path, "ls")
	})

	t.Run("ignores directory even if executable", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("TEST_BINARY_PATH", tmpDir)

		path, err := FindBinary("ls", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.NotEqual(t, tmpDir, path)
		assert.Contains(t, path, "ls")
	})
}
