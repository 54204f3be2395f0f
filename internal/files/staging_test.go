package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueName(t *testing.T) {
	t.Run("no collision", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, filepath.Join(dir, "syllabus.pdf"), UniqueName(dir, "syllabus.pdf"))
	})

	t.Run("collisions", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hw.pdf"), []byte("x"), 0o644))
		assert.Equal(t, filepath.Join(dir, "hw_1.pdf"), UniqueName(dir, "hw.pdf"))

		require.NoError(t, os.WriteFile(filepath.Join(dir, "hw_1.pdf"), []byte("x"), 0o644))
		assert.Equal(t, filepath.Join(dir, "hw_2.pdf"), UniqueName(dir, "hw.pdf"))
	})

	t.Run("path traversal", func(t *testing.T) {
		dir := t.TempDir()
		got := UniqueName(dir, "../../../etc/passwd")
		assert.Equal(t, filepath.Join(dir, "passwd"), got)
	})

	t.Run("windows separators", func(t *testing.T) {
		dir := t.TempDir()
		got := UniqueName(dir, `..\..\notes.txt`)
		assert.Equal(t, filepath.Join(dir, "notes.txt"), got)
	})

	t.Run("degenerate name", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, filepath.Join(dir, "attachment"), UniqueName(dir, ".."))
	})

	t.Run("no extension", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644))
		assert.Equal(t, filepath.Join(dir, "README_1"), UniqueName(dir, "README"))
	})
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temp_files")

	p1, err := Save(dir, "slides.pptx", []byte("one"))
	require.NoError(t, err)
	p2, err := Save(dir, "slides.pptx", []byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	data, err = os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestRemoveAll(t *testing.T) {
	dir := t.TempDir()
	p, err := Save(dir, "a.txt", []byte("a"))
	require.NoError(t, err)

	n, err := RemoveAll([]string{p, filepath.Join(dir, "missing.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, p)
}
