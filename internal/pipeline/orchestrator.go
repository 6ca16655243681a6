// Package pipeline runs the background loops of watch mode: the poller that
// refreshes the repository and the archiver that dumps raw accounts.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator supervises the poller and the optional archiver.
type Orchestrator struct {
	poller   *Poller
	archiver *Archiver
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(poller *Poller, archiver *Archiver, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{poller: poller, archiver: archiver, logger: logger}
}

// Run starts every loop and blocks until ctx is cancelled or one fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("poll_interval", o.poller.interval),
		slog.Bool("archiver", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := o.poller.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("poller: %w", err)
	})
	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
