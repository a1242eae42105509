package fileproc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoflow/repoflow/pkg/fileproc"
)

func TestMkdirs(t *testing.T) {
	p := fileproc.Default{}
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, p.Mkdirs(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Creating an existing chain is fine.
	assert.NoError(t, p.Mkdirs(dir))
	assert.NoError(t, p.Mkdirs(""))
}

func TestMove(t *testing.T) {
	p := fileproc.Default{}
	dir := t.TempDir()
	src := filepath.Join(dir, "download.part-0123456789abcdef")
	dst := filepath.Join(dir, "sub", "download.jar")
	require.NoError(t, os.WriteFile(src, []byte("HELLO"), 0o644))

	require.NoError(t, p.Move(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), got)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveMissingSource(t *testing.T) {
	p := fileproc.Default{}
	dir := t.TempDir()
	err := p.Move(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	p := fileproc.Default{}
	dst := filepath.Join(t.TempDir(), "nested", "file.sha1")

	require.NoError(t, p.Write(dst, []byte("abcdef\n")))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef\n"), got)
}
