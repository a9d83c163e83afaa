// Package pipeline ingests venue market listings into the vector store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs one ingest loop per source concurrently.
type Orchestrator struct {
	ingesters []*Ingester
	interval  time.Duration
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. An interval of zero makes Run do
// a single pass per source and return.
func NewOrchestrator(ingesters []*Ingester, interval time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{ingesters: ingesters, interval: interval, logger: logger}
}

// Run starts every ingester under an errgroup and waits. Cancellation of
// ctx is a clean stop.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.ingesters) == 0 {
		return errors.New("pipeline: no sources enabled")
	}
	o.logger.Info("ingest orchestrator starting",
		slog.Int("sources", len(o.ingesters)),
		slog.Duration("interval", o.interval),
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, in := range o.ingesters {
		g.Go(func() error {
			err := in.RunLoop(ctx, o.interval)
			if err == nil || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingest %s: %w", in.Site(), err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("ingest orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("ingest orchestrator stopped")
	return nil
}
