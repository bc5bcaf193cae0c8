package ops

import (
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/hpungsan/glean/internal/errors"
)

// openForWrite opens an export temp file without following a symlink in the final component.
func openForWrite(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := openNoFollow(path, flag, perm)
	if err != nil {
		return nil, openError(path, err, "write to")
	}
	return f, nil
}

// openForRead opens an import or knowledge source file the same way.
func openForRead(path string) (*os.File, error) {
	f, err := openNoFollow(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, openError(path, err, "read from")
	}
	return f, nil
}

func openError(path string, err error, verb string) error {
	switch {
	case errSymlink(err):
		return errors.NewInvalidRequest("cannot " + verb + " symlink")
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.NewFileNotFound(path)
	default:
		return err
	}
}
