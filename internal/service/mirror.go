package service

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/config"
	"github.com/Ning0612/mirrorsync/internal/core/checksum"
	"github.com/Ning0612/mirrorsync/internal/core/diff"
	"github.com/Ning0612/mirrorsync/internal/core/mirror"
	"github.com/Ning0612/mirrorsync/internal/domain"
	"github.com/Ning0612/mirrorsync/internal/logger"
	"github.com/Ning0612/mirrorsync/internal/scheduler"
	"github.com/Ning0612/mirrorsync/internal/state"
)

// MirrorService runs sync cycles for one source/replica pair and records
// their outcome. It implements scheduler.CycleRunner.
type MirrorService struct {
	config      *config.Config
	fs          afero.Fs
	fingerprint *checksum.DefaultCalculator
	comparer    diff.Comparer
	history     *state.Manager
	log         logger.Logger
}

// NewMirrorService creates a mirror service operating on fs. history may be
// nil to disable cycle records.
func NewMirrorService(cfg *config.Config, fs afero.Fs, history *state.Manager, log logger.Logger) (*MirrorService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	algo := checksum.Algorithm(cfg.Algorithm)
	if !checksum.IsSupported(algo) {
		return nil, fmt.Errorf("%w: unsupported algorithm: %s", domain.ErrConfigInvalid, cfg.Algorithm)
	}

	return &MirrorService{
		config:      cfg,
		fs:          fs,
		fingerprint: checksum.NewCalculator(checksum.Options{Algorithm: algo}),
		comparer:    diff.NewFingerprintComparer(),
		history:     history,
		log:         logger.OrNull(log),
	}, nil
}

// RunCycle executes one sync cycle. Per-entry failures are logged and kept
// out of the returned error; only a cycle that could not complete returns
// one.
func (s *MirrorService) RunCycle(ctx context.Context, phase func(scheduler.State)) error {
	reconciler := mirror.NewReconciler(s.fs, mirror.Options{
		Workers:       s.config.Workers,
		Fingerprinter: s.fingerprint,
		Comparer:      s.comparer,
		Logger:        s.log,
		OnEnumerated: func() {
			if phase != nil {
				phase(scheduler.StateReconciling)
			}
		},
	})

	report, err := reconciler.Reconcile(ctx, s.config.Source, s.config.Replica)
	s.record(report, err)
	return err
}

// record stores the cycle outcome; failing to do so never fails the cycle
func (s *MirrorService) record(report *domain.CycleReport, cycleErr error) {
	if s.history == nil || report == nil {
		return
	}

	record := state.NewCycleRecord(s.config.Source, s.config.Replica, report, cycleErr)
	if err := s.history.SaveCycle(record); err != nil {
		s.log.Warn("failed to save cycle record", "error", err)
	}
}
