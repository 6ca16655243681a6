package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// archiveLockKey is the lock shared by every replica's archiver.
const archiveLockKey = "archive:accounts"

// Archiver periodically dumps raw program accounts to cold storage. With a
// lock manager, only the replica holding the lock dumps in a given interval.
type Archiver struct {
	blobArchiver domain.Archiver
	locks        domain.LockManager
	interval     time.Duration
	logger       *slog.Logger
}

// NewArchiver creates an Archiver. locks may be nil for a single replica.
func NewArchiver(blobArchiver domain.Archiver, locks domain.LockManager, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver: blobArchiver,
		locks:        locks,
		interval:     interval,
		logger:       logger.With(slog.String("component", "archiver")),
	}
}

// Run performs one dump. It returns nil without dumping when another replica
// holds the lock.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locks != nil {
		// The lease is never released early; it expires just before the next
		// tick so peers skip this interval.
		_, err := a.locks.Acquire(ctx, archiveLockKey, a.interval*9/10)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Debug("archiver: another replica holds the lock")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: archive lock: %w", err)
		}
	}

	start := time.Now()
	path, n, err := a.blobArchiver.ArchiveAccounts(ctx, start)
	if err != nil {
		return fmt.Errorf("pipeline: archive accounts: %w", err)
	}
	a.logger.Info("archiver: accounts archived",
		slog.String("path", path),
		slog.Int("count", n),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// RunLoop archives immediately, then on every interval until ctx is
// cancelled.
func (a *Archiver) RunLoop(ctx context.Context) error {
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("archiver: run failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("archiver: run failed", slog.String("error", err.Error()))
			}
		}
	}
}
