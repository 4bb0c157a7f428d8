package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile creates a file named 'name' inside 'dir' with the content
// provided, returning the full path of the file.
func WriteFile(t *testing.T, dir string, name string, content []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create parent dir for fixture")
	require.NoError(t, os.WriteFile(path, content, 0o644), "failed to write fixture file")

	return path
}

// DirEntries returns the names of the entries inside 'dir'.
func DirEntries(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to read directory %s", dir)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}
