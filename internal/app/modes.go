package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ListenMode streams live vault events on every configured chain until the
// context is cancelled. A failing chain listener brings the process down so
// the supervisor can restart it; silent per-chain death would mean silently
// diverging ledgers.
func (a *App) ListenMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Listener.Enabled {
		return fmt.Errorf("app: listener is disabled in config")
	}

	g, ctx := errgroup.WithContext(ctx)
	started := 0
	for _, set := range deps.Chains {
		if set.Listener == nil {
			continue
		}
		l := set.Listener
		started++
		g.Go(func() error {
			return l.Run(ctx)
		})
	}
	if started == 0 {
		return fmt.Errorf("app: no chains with ws_url configured")
	}

	a.logger.InfoContext(ctx, "listen mode running", slog.Int("chains", started))
	return g.Wait()
}

// BackfillMode performs one reconciliation sweep per configured chain and
// exits. Intended for cron-style invocation.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Backfill.Enabled {
		return fmt.Errorf("app: backfill is disabled in config")
	}

	ran := 0
	for _, set := range deps.Chains {
		if set.Scanner == nil {
			continue
		}
		ran++
		if err := set.Scanner.Run(ctx); err != nil {
			return fmt.Errorf("app: backfill %s: %w", set.ID, err)
		}
	}
	if ran == 0 {
		return fmt.Errorf("app: no chains with explorer_url configured")
	}

	a.logger.InfoContext(ctx, "backfill sweep finished", slog.Int("chains", ran))
	return nil
}

// FullMode runs the live listeners plus periodic backfill sweeps together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	started := 0

	for _, set := range deps.Chains {
		if set.Listener != nil && a.cfg.Listener.Enabled {
			l := set.Listener
			started++
			g.Go(func() error {
				return l.Run(ctx)
			})
		}
		if set.Scanner != nil && a.cfg.Backfill.Enabled {
			s := set.Scanner
			interval := a.cfg.Backfill.Interval.Duration
			started++
			g.Go(func() error {
				return s.RunLoop(ctx, interval)
			})
		}
	}
	if started == 0 {
		return fmt.Errorf("app: nothing to run; check chains, listener, and backfill config")
	}

	a.logger.InfoContext(ctx, "full mode running", slog.Int("workers", started))
	return g.Wait()
}
