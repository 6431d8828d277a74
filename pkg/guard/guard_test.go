package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestUnwindRemovesInReverseOrder(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "deploy")
	sub := filepath.Join(dir, "log")
	require.NoError(t, os.Mkdir(dir, 0o700))
	require.NoError(t, os.Mkdir(sub, 0o700))
	file := filepath.Join(sub, "pending.conf")
	writeFile(t, file)

	g := New(zap.NewNop())
	g.TrackDirectory(dir, false)
	g.TrackDirectory(sub, false)
	g.TrackFile(file)

	// Non-recursive rmdir only succeeds if children were removed first,
	// which is exactly what reverse insertion order guarantees.
	g.Unwind()

	assert.NoFileExists(t, file)
	assert.NoDirExists(t, sub)
	assert.NoDirExists(t, dir)
}

func TestUnwindRecursiveDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "deploy")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "run"), 0o700))
	writeFile(t, filepath.Join(dir, "run", "keyring"))

	g := New(zap.NewNop())
	g.TrackDirectory(dir, true)
	g.Unwind()

	assert.NoDirExists(t, dir)
}

func TestCommitPreventsDeletion(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "kept.conf")
	writeFile(t, file)

	g := New(zap.NewNop())
	g.TrackFile(file)
	g.Commit()
	g.Unwind()

	assert.FileExists(t, file)
}

func TestUntrack(t *testing.T) {
	base := t.TempDir()
	kept := filepath.Join(base, "kept")
	gone := filepath.Join(base, "gone")
	writeFile(t, kept)
	writeFile(t, gone)

	g := New(zap.NewNop())
	g.TrackFile(kept)
	g.TrackFile(gone)
	g.Untrack(kept)
	g.Unwind()

	assert.FileExists(t, kept)
	assert.NoFileExists(t, gone)
}

func TestUnwindToleratesMissingPaths(t *testing.T) {
	g := New(zap.NewNop())
	g.TrackFile(filepath.Join(t.TempDir(), "never-created"))
	g.Unwind() // must not panic or error
}

func TestUnwindIsIdempotent(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "once")
	writeFile(t, file)

	g := New(zap.NewNop())
	g.TrackFile(file)
	g.Unwind()
	g.Unwind()

	assert.NoFileExists(t, file)
}
