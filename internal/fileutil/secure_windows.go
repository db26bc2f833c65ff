//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// protect limits path to the current user when perm is owner-only. Windows
// ignores the Unix mode bits, so the DACL is what keeps the stored server
// password private. Failures are logged, never returned.
func protect(path string, perm os.FileMode) {
	if perm&0077 != 0 {
		return
	}
	if err := restrictToCurrentUser(path); err != nil {
		slog.Warn("could not restrict access to current user", "path", path, "err", err)
	}
}

// restrictToCurrentUser replaces the DACL of path with a single protected
// entry granting GENERIC_ALL to the process user. Directories pass the
// entry on to the files and directories created inside them.
func restrictToCurrentUser(path string) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("current user SID for %s: %w", path, err)
	}

	inherit := uint32(windows.NO_INHERITANCE)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}
	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("build ACL for %s: %w", path, err)
	}

	info := windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION)
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, info, nil, nil, acl, nil); err != nil {
		return fmt.Errorf("set DACL on %s: %w", path, err)
	}
	return nil
}

// SecureWriteFile replaces the named file with data through a temporary
// file in the same directory. The temporary file is protected before the
// rename, so the final name never has a looser DACL.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp, perm)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	protect(tmp, perm)
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// missingDirs lists path and those of its parents that do not exist yet,
// deepest first.
func missingDirs(path string) []string {
	var dirs []string
	for p := filepath.Clean(path); p != "." && p != filepath.Dir(p); p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		}
		dirs = append(dirs, p)
	}
	return dirs
}

// SecureMkdirAll creates path and its parents. Every directory it creates
// is protected, not just the leaf.
func SecureMkdirAll(path string, perm os.FileMode) error {
	created := missingDirs(path)
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	for _, dir := range created {
		protect(dir, perm)
	}
	return nil
}

// SecureChmod changes the mode of the named file and protects it.
func SecureChmod(path string, perm os.FileMode) error {
	if err := os.Chmod(path, perm); err != nil {
		return err
	}
	protect(path, perm)
	return nil
}

// SecureOpenFile opens the named file. With O_CREATE the file is protected
// whether or not it existed; the log file may predate this run.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		protect(path, perm)
	}
	return f, nil
}
