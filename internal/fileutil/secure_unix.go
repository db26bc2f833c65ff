//go:build !windows

// Package fileutil creates pitwatch's private files: config.toml, which may
// hold the server password, the preference database and the log file.
// On Unix the helpers rely on file modes only and do not protect against
// symlink traversal.
// On Windows, owner-only modes (perm & 0077 == 0) additionally set
// a DACL restricting access to the current user.
package fileutil

import (
	"os"
	"path/filepath"
)

// SecureWriteFile replaces the named file with data. The data is written to
// a temporary file in the same directory with mode perm and renamed over
// path, so a reader sees either the old or the new content. The parent
// directory must exist.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	done := false
	defer func() {
		if !done {
			f.Close()
			os.Remove(tmp)
		}
	}()

	// CreateTemp uses 0600; Chmod is exact and not subject to umask.
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	done = true
	return nil
}

// SecureMkdirAll creates a directory path and all parents that do not yet exist.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// SecureChmod changes the mode of the named file.
func SecureChmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

// SecureOpenFile opens the named file with specified flag and permissions.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
