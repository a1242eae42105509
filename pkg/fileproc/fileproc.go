package fileproc

import (
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// Processor performs the filesystem operations the transfer engine
// delegates: directory creation, atomic publication of a finished
// download, and small sidecar writes.
type Processor interface {
	// Mkdirs creates dir and any missing parents.
	Mkdirs(dir string) error
	// Move publishes src at dst atomically. The destination must never
	// be observable in a half-written state.
	Move(src, dst string) error
	// Write replaces dst with content.
	Write(dst string, content []byte) error
}

// Default implements Processor with same-filesystem rename, falling
// back to copy+sync+rename next to the destination when the rename
// crosses filesystems.
type Default struct{}

func (Default) Mkdirs(dir string) error {
	if dir == "" {
		return nil
	}
	err := os.MkdirAll(dir, os.ModePerm)
	if err == nil {
		return nil
	}
	// MkdirAll can lose a race against a concurrent worker creating the
	// same chain; re-check before reporting failure.
	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		return nil
	}
	return xerrors.Errorf("unable to create a directory: %w", err)
}

func (d Default) Move(src, dst string) error {
	if err := d.Mkdirs(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename across filesystems fails with EXDEV; stage a copy on the
	// destination filesystem and rename that instead.
	if err := copyToSibling(src, dst); err != nil {
		return xerrors.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("failed to remove %s after move: %w", src, err)
	}
	return nil
}

func (d Default) Write(dst string, content []byte) error {
	if err := d.Mkdirs(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return xerrors.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

func copyToSibling(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
