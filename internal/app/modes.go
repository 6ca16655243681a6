package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/parimutuel/internal/action"
	s3blob "github.com/alanyoungcy/parimutuel/internal/blob/s3"
	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/pipeline"
	"github.com/alanyoungcy/parimutuel/internal/repository"
	"github.com/alanyoungcy/parimutuel/internal/server"
	"github.com/alanyoungcy/parimutuel/internal/server/handler"
	"github.com/alanyoungcy/parimutuel/internal/server/ws"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

// WatchMode polls the chain, publishes snapshot transitions, optionally
// archives raw accounts and serves the API until ctx is cancelled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.String("program", deps.Program.String()),
		slog.Int("wallets", len(deps.Wallets)),
		slog.Duration("interval", a.cfg.Poll.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	repo := repository.New(deps.Source, a.logger)
	pub := service.NewPublisher(service.PublisherConfig{
		Bus:        deps.SignalBus,
		Notifier:   deps.Notifier,
		Markets:    deps.MarketHistory,
		Portfolios: deps.PortfolioHistory,
		Audit:      deps.AuditStore,
	}, a.logger)
	pub.Attach(repo)
	g.Go(func() error { return pub.Run(ctx) })

	poller := pipeline.NewPoller(repo, a.cfg.Poll.Interval.Duration, a.cfg.Poll.MarketsEnabled, a.cfg.Poll.Concurrency, a.logger,
		pipeline.WithMaxWallets(a.cfg.Poll.MaxWatchedWallets))
	for _, w := range deps.Wallets {
		poller.Pin(w)
	}

	var archiver *pipeline.Archiver
	if blobArchiver := deps.archiver(a.cfg, deps.Source); blobArchiver != nil {
		archiver = pipeline.NewArchiver(blobArchiver, deps.LockManager, a.cfg.Archive.Interval.Duration, a.logger)
	}
	orch := pipeline.NewOrchestrator(poller, archiver, a.logger)
	g.Go(func() error { return orch.Run(ctx) })

	tracker := action.NewTracker(a.cfg.Actions.StatusClearDelay.Duration, poller.Trigger, a.logger,
		action.WithPendingTimeout(a.cfg.Actions.PendingTimeout.Duration))
	tracker.OnChange(pub.ActionChanged)
	a.closers = append(a.closers, func() { _ = tracker.Close() })

	if a.cfg.Server.Enabled {
		svc := a.portfolioService(repo, deps, service.WithWatcher(poller))
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health:    handler.NewHealthHandler(a.cfg.Mode, poller, deps.Checks, a.logger),
			Markets:   handler.NewMarketHandler(svc, a.logger),
			Positions: handler.NewPositionHandler(svc, a.logger),
			Refresh:   handler.NewRefreshHandler(poller, a.logger),
			Actions:   handler.NewActionHandler(tracker, a.logger),
			Events:    handler.NewEventHandler(deps.SignalBus, a.logger),
			Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
		})
	}

	return g.Wait()
}

// snapshotReport is the document SnapshotMode prints.
type snapshotReport struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Program     domain.Address      `json:"program"`
	Markets     int                 `json:"markets"`
	Portfolios  []snapshotPortfolio `json:"portfolios"`
}

type snapshotPortfolio struct {
	service.PortfolioView
	Positions []service.PositionView `json:"positions"`
}

// SnapshotMode runs one poll cycle for the configured wallets, prints every
// portfolio as JSON and exits.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting snapshot mode", slog.Int("wallets", len(deps.Wallets)))

	repo := repository.New(deps.Source, a.logger)
	poller := pipeline.NewPoller(repo, a.cfg.Poll.Interval.Duration, a.cfg.Poll.MarketsEnabled, a.cfg.Poll.Concurrency, a.logger)
	for _, w := range deps.Wallets {
		poller.Pin(w)
	}
	if err := poller.Run(ctx); err != nil {
		return fmt.Errorf("snapshot mode: %w", err)
	}

	svc := service.NewPortfolioService(repo, a.logger)
	report := snapshotReport{
		GeneratedAt: time.Now().UTC(),
		Program:     deps.Program,
		Markets:     repo.Markets().Len(),
		Portfolios:  make([]snapshotPortfolio, 0, len(deps.Wallets)),
	}
	for _, w := range deps.Wallets {
		view, err := svc.Portfolio(ctx, w)
		if err != nil {
			return fmt.Errorf("snapshot mode: portfolio %s: %w", w, err)
		}
		positions, err := svc.Positions(ctx, w, domain.TabAll)
		if err != nil {
			return fmt.Errorf("snapshot mode: positions %s: %w", w, err)
		}
		report.Portfolios = append(report.Portfolios, snapshotPortfolio{PortfolioView: view, Positions: positions})
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("snapshot mode: write report: %w", err)
	}
	return nil
}

// ReplayMode loads an archived account dump and serves it read-only. No
// polling happens; positions of wallets not preloaded are decoded from the
// dump on first request.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	if deps.BlobReader == nil {
		return fmt.Errorf("replay mode: s3 is not enabled")
	}
	key, accounts, err := s3blob.LoadDump(ctx, deps.BlobReader, a.cfg.Archive.Prefix, deps.Program, a.cfg.Archive.ReplayPath)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("dump", key),
		slog.Int("accounts", len(accounts)),
	)

	repo := repository.New(repository.NewMemorySource(accounts), a.logger)
	if _, err := repo.RefreshMarkets(ctx); err != nil {
		return fmt.Errorf("replay mode: load markets: %w", err)
	}
	for _, w := range deps.Wallets {
		if _, err := repo.RefreshPositions(ctx, w); err != nil {
			return fmt.Errorf("replay mode: load positions %s: %w", w, err)
		}
	}

	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "replay mode: server disabled, nothing to serve")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	svc := a.portfolioService(repo, deps)
	a.startHTTPServer(ctx, g, deps, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, nil, deps.Checks, a.logger),
		Markets:   handler.NewMarketHandler(svc, a.logger),
		Positions: handler.NewPositionHandler(svc, a.logger),
		Refresh:   handler.NewRefreshHandler(nil, a.logger),
		Events:    handler.NewEventHandler(deps.SignalBus, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	})
	return g.Wait()
}

func (a *App) portfolioService(repo *repository.Repository, deps *Dependencies, opts ...service.Option) *service.PortfolioService {
	if deps.MarketHistory != nil && deps.PortfolioHistory != nil {
		opts = append(opts, service.WithHistory(deps.MarketHistory, deps.PortfolioHistory))
	}
	return service.NewPortfolioService(repo, a.logger, opts...)
}

// startHTTPServer runs the websocket hub and the API server in g and shuts the
// server down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
