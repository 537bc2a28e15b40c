package mirror

import (
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/domain"
)

const tempPattern = ".mirrorsync-*.tmp"

// readTracker remembers the last error returned by the wrapped reader so a
// failed io.Copy can be attributed to the right side
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// copyFile copies src over dst through a temporary file in dst's directory.
// The permission bits and modification time of src are carried over and the
// temporary file is renamed into place only once it is complete, so dst is
// never observed half-written.
func copyFile(fs afero.Fs, src, dst string) (n int64, err error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, domain.NewReadError(domain.OpCopy, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, domain.NewReadError(domain.OpCopy, src, err)
	}

	tmp, err := afero.TempFile(fs, filepath.Dir(dst), tempPattern)
	if err != nil {
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpPath)
		}
	}()

	reader := &readTracker{r: in}
	n, err = io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		if reader.err != nil {
			return 0, domain.NewReadError(domain.OpCopy, src, reader.err)
		}
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}

	if err = fs.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}
	if err = fs.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}
	if err = fs.Rename(tmpPath, dst); err != nil {
		return 0, domain.NewWriteError(domain.OpCopy, dst, err)
	}
	return n, nil
}
