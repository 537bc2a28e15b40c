package mirror

import (
	"context"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/core/walk"
	"github.com/Ning0612/mirrorsync/internal/domain"
)

// Deleter removes replica entries that no longer exist in the source
type Deleter struct {
	fs afero.Fs
}

// NewDeleter creates a Deleter operating on fs
func NewDeleter(fs afero.Fs) *Deleter {
	return &Deleter{fs: fs}
}

// HandleDeletions removes every entry below subtree that snapshot does not
// cover. subtree must be replicaRoot or a directory below it; entries are
// compared to snapshot by their path relative to replicaRoot.
//
// Directories are emptied depth-first before being removed, and every
// removal is recorded exactly once per cycle. Per-entry failures are
// recorded on c and do not stop the pass. The only error returned is
// ctx.Err() when the pass was interrupted.
func (d *Deleter) HandleDeletions(ctx context.Context, c *Cycle, replicaRoot, subtree string, snapshot *Snapshot) error {
	prefix, err := relative(replicaRoot, subtree)
	if err != nil {
		c.fail(domain.NewWriteError(domain.OpDelete, subtree, err))
		return nil
	}

	var orphans []domain.Entry
	for entry, err := range walk.Enumerate(ctx, d.fs, subtree) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.fail(err)
			continue
		}

		rel := path.Join(prefix, entry.Path)
		if snapshot.Covers(rel) {
			continue
		}
		orphans = append(orphans, domain.Entry{Path: rel, Kind: entry.Kind})
	}

	// Enumeration order puts each directory before its descendants, so a
	// directory's recursive pass marks them processed before they are reached
	for _, orphan := range orphans {
		if err := ctx.Err(); err != nil {
			return err
		}

		abs := filepath.Join(replicaRoot, filepath.FromSlash(orphan.Path))
		if c.processed.Has(abs) {
			continue
		}

		if orphan.IsDir() {
			if err := d.removeDir(ctx, c, replicaRoot, abs, snapshot); err != nil {
				return err
			}
		} else {
			d.removeFile(c, abs)
		}
		c.processed.Add(filepath.Dir(abs))
	}
	return nil
}

// purge removes abs and everything below it, regardless of the source
func (d *Deleter) purge(ctx context.Context, c *Cycle, replicaRoot, abs string) error {
	if err := d.HandleDeletions(ctx, c, replicaRoot, abs, nil); err != nil {
		return err
	}
	c.processed.Add(abs)
	return d.fs.Remove(abs)
}

func (d *Deleter) removeFile(c *Cycle, abs string) {
	if err := d.fs.Remove(abs); err != nil {
		c.processed.Add(abs)
		c.fail(domain.NewWriteError(domain.OpDelete, abs, err))
		return
	}
	c.record(domain.Action{Type: domain.ActionDeleteFile, Path: abs}, 0)
}

func (d *Deleter) removeDir(ctx context.Context, c *Cycle, replicaRoot, abs string, snapshot *Snapshot) error {
	if err := d.HandleDeletions(ctx, c, replicaRoot, abs, snapshot); err != nil {
		return err
	}

	if err := d.fs.Remove(abs); err != nil {
		c.processed.Add(abs)
		c.fail(domain.NewWriteError(domain.OpDelete, abs, err))
		return nil
	}
	c.record(domain.Action{Type: domain.ActionDeleteDir, Path: abs}, 0)
	return nil
}

// relative returns path relative to root with forward slashes
func relative(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
