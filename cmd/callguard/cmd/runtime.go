package cmd

import (
	"context"
	"fmt"

	"github.com/psantana5/callguard/internal/config"
	"github.com/psantana5/callguard/pkg/backend"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/psantana5/callguard/pkg/journal"
	"github.com/psantana5/callguard/pkg/logging"
	"github.com/psantana5/callguard/pkg/metrics"
	"github.com/psantana5/callguard/pkg/tracing"
)

// runtime holds the collaborators shared by serve and probe.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	client    *backend.Client
	journal   journal.Journal
	collector *metrics.Collector
	tracing   *tracing.Provider
}

func newRuntime(ctx context.Context, c *config.Config) (*runtime, error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}

	j, err := journal.New(c.Journal)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open %s journal: %w", c.Journal.Type, err)
	}

	tp, err := tracing.Init(ctx, c.Tracing, logger)
	if err != nil {
		j.Close()
		logger.Close()
		return nil, err
	}

	return &runtime{
		cfg:       c,
		logger:    logger,
		client:    backend.NewClient(c.Backend),
		journal:   j,
		collector: metrics.NewCollector(),
		tracing:   tp,
	}, nil
}

// guardOptions are the options every guard of the process gets.
func (rt *runtime) guardOptions() []guard.Option {
	return []guard.Option{
		guard.WithLogger(rt.logger),
		guard.WithLocalizer(guard.NewLocalizer(rt.cfg.Locale)),
		guard.WithDiagnostics(journal.Sink{Journal: rt.journal}),
		guard.WithObserver(rt.collector),
		guard.WithTracer(rt.tracing.Tracer()),
	}
}

func (rt *runtime) Close(ctx context.Context) error {
	if err := rt.tracing.Shutdown(ctx); err != nil {
		rt.logger.Warn("tracing shutdown failed", logging.Fields{"error": err})
	}
	err := rt.journal.Close()
	rt.logger.Close()
	return err
}
