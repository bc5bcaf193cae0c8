//go:build windows

package ops

import "os"

// openNoFollow falls back to a plain open; ValidatePath has already rejected symlinks.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

func errSymlink(error) bool {
	return false
}
