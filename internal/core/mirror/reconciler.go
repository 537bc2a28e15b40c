// Package mirror makes a replica directory tree an exact copy of a source tree.
package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/mirrorsync/internal/core/checksum"
	"github.com/Ning0612/mirrorsync/internal/core/diff"
	"github.com/Ning0612/mirrorsync/internal/core/walk"
	"github.com/Ning0612/mirrorsync/internal/domain"
	"github.com/Ning0612/mirrorsync/internal/logger"
)

// Fingerprinter computes the content digest of a file
type Fingerprinter interface {
	Fingerprint(ctx context.Context, fs afero.Fs, path string) (string, error)
}

// Options configures a Reconciler
type Options struct {
	// Workers bounds concurrent file copies. Values below 2 copy inline on
	// the enumerating goroutine.
	Workers int

	Fingerprinter Fingerprinter
	Comparer      diff.Comparer
	Logger        logger.Logger

	// OnEnumerated is called once the source walk has completed
	OnEnumerated func()
}

// Reconciler runs sync cycles from a source root to a replica root
type Reconciler struct {
	fs           afero.Fs
	workers      int
	fingerprint  Fingerprinter
	comparer     diff.Comparer
	deleter      *Deleter
	log          logger.Logger
	onEnumerated func()
}

// NewReconciler creates a Reconciler operating on fs
func NewReconciler(fs afero.Fs, opts Options) *Reconciler {
	r := &Reconciler{
		fs:           fs,
		workers:      opts.Workers,
		fingerprint:  opts.Fingerprinter,
		comparer:     opts.Comparer,
		deleter:      NewDeleter(fs),
		log:          logger.OrNull(opts.Logger),
		onEnumerated: opts.OnEnumerated,
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.fingerprint == nil {
		r.fingerprint = checksum.NewDefaultCalculator()
	}
	if r.comparer == nil {
		r.comparer = diff.NewFingerprintComparer()
	}
	return r
}

// Reconcile runs one sync cycle.
//
// Directories are created while the source is enumerated and files are
// copied when their fingerprints differ. Once every copy has finished,
// replica entries absent from the source are removed. Per-entry failures are
// collected in the report and do not abort the cycle.
//
// The returned error is non-nil only when the cycle could not run to the
// end: the source root is unreadable or ctx was cancelled. In the latter
// case the deletion pass is skipped. The report is always returned.
func (r *Reconciler) Reconcile(ctx context.Context, sourceRoot, replicaRoot string) (*domain.CycleReport, error) {
	c := NewCycle(r.log)
	start := time.Now()
	r.log.Info("cycle started", "source", sourceRoot, "replica", replicaRoot)

	snapshot, err := r.mirror(ctx, c, sourceRoot, replicaRoot)
	if err == nil {
		if r.onEnumerated != nil {
			r.onEnumerated()
		}
		err = ctx.Err()
	}
	if err == nil {
		err = r.deleter.HandleDeletions(ctx, c, replicaRoot, replicaRoot, snapshot)
	}

	report := c.finish()
	args := []any{
		"entries", snapshot.Len(),
		"created", report.Count(domain.ActionMkdir),
		"copied", report.Count(domain.ActionCopy),
		"replaced", report.Count(domain.ActionReplace),
		"deleted", report.Count(domain.ActionDeleteFile) + report.Count(domain.ActionDeleteDir),
		"errors", len(report.Errors),
		"bytes", report.BytesCopied,
		"duration", time.Since(start),
	}
	switch {
	case domain.IsCancellation(err):
		r.log.Warn("cycle cancelled", args...)
	case err != nil:
		r.log.Error("cycle failed", append(args, "error", err)...)
	default:
		r.log.Info("cycle finished", args...)
	}
	return report, err
}

// mirror walks the source, creating directories inline and dispatching file
// copies. It returns after every dispatched copy finished.
func (r *Reconciler) mirror(ctx context.Context, c *Cycle, sourceRoot, replicaRoot string) (*Snapshot, error) {
	snapshot := NewSnapshot()

	var g errgroup.Group
	g.SetLimit(r.workers)

	var walkErr error
	for entry, err := range walk.Enumerate(ctx, r.fs, sourceRoot) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				walkErr = ctxErr
				break
			}
			if entry.Path == "." {
				walkErr = errors.Join(domain.ErrAccess, err)
				break
			}
			snapshot.Protect(entry.Path)
			c.fail(err)
			continue
		}

		snapshot.Add(entry.Path)
		src := filepath.Join(sourceRoot, filepath.FromSlash(entry.Path))
		dst := filepath.Join(replicaRoot, filepath.FromSlash(entry.Path))

		if entry.IsDir() {
			r.syncDir(c, src, dst)
			continue
		}

		if r.workers == 1 {
			r.syncFile(ctx, c, replicaRoot, src, dst)
			continue
		}
		g.Go(func() error {
			r.syncFile(ctx, c, replicaRoot, src, dst)
			return nil
		})
	}

	_ = g.Wait()
	return snapshot, walkErr
}

// replicaEntry describes what currently sits at a replica path
type replicaEntry struct {
	diff.Side

	// Link is set for a symbolic link, which is never written through
	Link bool
}

// replicaSide inspects dst without following a final symbolic link
func (r *Reconciler) replicaSide(dst string) (replicaEntry, error) {
	info, err := r.lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return replicaEntry{}, nil
		}
		return replicaEntry{}, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return replicaEntry{Side: diff.Side{Exists: true}, Link: true}, nil
	}
	return replicaEntry{Side: diff.Side{Exists: true, IsDir: info.IsDir()}}, nil
}

func (r *Reconciler) lstat(path string) (os.FileInfo, error) {
	if l, ok := r.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return r.fs.Stat(path)
}

func (r *Reconciler) syncDir(c *Cycle, src, dst string) {
	replica, err := r.replicaSide(dst)
	if err != nil {
		c.fail(domain.NewWriteError(domain.OpStat, dst, err))
		return
	}

	switch r.comparer.Compare(diff.Side{Exists: true, IsDir: true}, replica.Side) {
	case diff.OnlyInSource:
		if err := r.fs.MkdirAll(dst, 0755); err != nil {
			c.fail(domain.NewWriteError(domain.OpMkdir, dst, err))
			return
		}
		c.record(domain.Action{Type: domain.ActionMkdir, Path: dst, Source: src}, 0)
	case diff.TypeMismatch:
		c.processed.Add(dst)
		if err := r.fs.Remove(dst); err != nil {
			c.fail(domain.NewWriteError(domain.OpDelete, dst, err))
			return
		}
		if err := r.fs.MkdirAll(dst, 0755); err != nil {
			c.fail(domain.NewWriteError(domain.OpMkdir, dst, err))
			return
		}
		c.record(domain.Action{Type: domain.ActionReplace, Path: dst, Source: src}, 0)
	}
}

func (r *Reconciler) syncFile(ctx context.Context, c *Cycle, replicaRoot, src, dst string) {
	if ctx.Err() != nil {
		return
	}

	replica, err := r.replicaSide(dst)
	if err != nil {
		c.fail(domain.NewWriteError(domain.OpStat, dst, err))
		return
	}

	if replica.Link {
		n, err := copyFile(r.fs, src, dst)
		if err != nil {
			c.fail(err)
			return
		}
		c.record(domain.Action{Type: domain.ActionReplace, Path: dst, Source: src}, n)
		return
	}

	source := diff.Side{Exists: true}
	if replica.Exists && !replica.IsDir {
		if source.Fingerprint, err = r.fingerprint.Fingerprint(ctx, r.fs, src); err != nil {
			c.fail(err)
			return
		}
		if replica.Fingerprint, err = r.fingerprint.Fingerprint(ctx, r.fs, dst); err != nil {
			c.fail(err)
			return
		}
	}

	switch r.comparer.Compare(source, replica.Side) {
	case diff.Identical:
		return
	case diff.OnlyInSource, diff.Modified:
		n, err := copyFile(r.fs, src, dst)
		if err != nil {
			c.fail(err)
			return
		}
		c.record(domain.Action{Type: domain.ActionCopy, Path: dst, Source: src}, n)
	case diff.TypeMismatch:
		if err := r.deleter.purge(ctx, c, replicaRoot, dst); err != nil {
			if ctx.Err() == nil {
				c.fail(domain.NewWriteError(domain.OpDelete, dst, err))
			}
			return
		}
		n, err := copyFile(r.fs, src, dst)
		if err != nil {
			c.fail(err)
			return
		}
		c.record(domain.Action{Type: domain.ActionReplace, Path: dst, Source: src}, n)
	}
}
