// Package walk enumerates a directory tree as entries relative to its root.
package walk

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/domain"
)

// errStop aborts the underlying walk once the consumer stops iterating
var errStop = errors.New("walk: iteration stopped")

// Enumerate returns a lazy sequence of every directory and file below root.
//
// Entries are produced in pre-order with names sorted inside each directory,
// so a directory always precedes its children. The root itself is not
// yielded. Symbolic links are reported by the kind of their target and
// never descended.
//
// An unreadable path yields its entry (with the path relative to root)
// together with a ReadError and the walk continues with its siblings.
// Cancelling ctx yields ctx.Err() once and ends the sequence.
func Enumerate(ctx context.Context, fs afero.Fs, root string) iter.Seq2[domain.Entry, error] {
	return func(yield func(domain.Entry, error) bool) {
		_ = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(domain.Entry{}, ctxErr)
				return errStop
			}

			rel, relErr := relative(root, path)
			if relErr != nil {
				if !yield(domain.Entry{Path: filepath.ToSlash(path)}, domain.NewReadError(domain.OpWalk, path, relErr)) {
					return errStop
				}
				return nil
			}

			if err != nil {
				entry := domain.Entry{Path: rel, Kind: domain.KindDirectory}
				if info != nil && !info.IsDir() {
					entry.Kind = domain.KindFile
				}
				if !yield(entry, domain.NewReadError(domain.OpWalk, path, err)) {
					return errStop
				}
				return nil
			}

			if rel == "." {
				return nil
			}

			entry := domain.Entry{Path: rel, Kind: kindOf(fs, path, info)}
			if !yield(entry, nil) {
				return errStop
			}
			return nil
		})
	}
}

// kindOf classifies a walked path. A symbolic link takes the kind of its
// target; the walk itself never descends into it.
func kindOf(fs afero.Fs, path string, info os.FileInfo) domain.EntryKind {
	if info.IsDir() {
		return domain.KindDirectory
	}
	if info.Mode()&os.ModeSymlink != 0 {
		if target, err := fs.Stat(path); err == nil && target.IsDir() {
			return domain.KindDirectory
		}
	}
	return domain.KindFile
}

// relative returns path relative to root with forward slashes
func relative(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
