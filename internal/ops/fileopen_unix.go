//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/zzeiidann/DNAI/internal/errors"
)

// openFileNoFollow opens an export file for writing with O_NOFOLLOW, so a
// symlink planted at the final path component is refused. O_CLOEXEC keeps
// the descriptor from leaking into child processes.
//
// O_NOFOLLOW only guards the last component. Directory components are left
// to ValidatePath, which only accepts files placed directly in an allowed
// directory, so a swapped directory symlink has nothing nested to redirect.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		// The kernel reports a refused symlink as ELOOP
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// openFileNoFollowRead opens an import file for reading with
// the same O_NOFOLLOW and O_CLOEXEC guarantees as openFileNoFollow.
func openFileNoFollowRead(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		}
		// Missing files surface as NOT_FOUND rather than a raw errno
		if stderrors.Is(err, syscall.ENOENT) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
