//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"
)

// openNoFollow adds O_NOFOLLOW and O_CLOEXEC. Only the final component is protected;
// ValidatePath keeps files directly inside an allowed directory.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

func errSymlink(err error) bool {
	return stderrors.Is(err, syscall.ELOOP)
}
