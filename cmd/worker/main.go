// Command worker runs the Temporal worker for conformance suite workflows.
// Supports fixture mode (recorded responses) and live mode (real services).
package main

import (
	"context"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/bodhi-compat/compatcheck/internal/config"
	"github.com/bodhi-compat/compatcheck/internal/connectors"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/ratelimit"
	"github.com/bodhi-compat/compatcheck/internal/temporal/activities"
	"github.com/bodhi-compat/compatcheck/internal/temporal/queues"
	"github.com/bodhi-compat/compatcheck/internal/temporal/versioning"
	"github.com/bodhi-compat/compatcheck/internal/temporal/workflows"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		observability.InitLogger("error").Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	shutdown, err := observability.Setup(ctx, "compat-worker", cfg.OTelEnabled)
	if err != nil {
		logger.Error("otel init failed", "error", err)
	} else {
		defer shutdown(context.Background())
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}
	runner, err := connectors.NewRunner(cfg, logger, metrics)
	if err != nil {
		logger.Error("build runner failed", "error", err)
		os.Exit(1)
	}
	pub, err := connectors.NewPublisher(ctx, cfg)
	if err != nil {
		logger.Error("publisher init failed", "error", err)
		os.Exit(1)
	}

	acts := &activities.Activities{
		Runner:  runner,
		Budget:  ratelimit.NewCallBudget(cfg.CallBudget, cfg.BudgetWindow),
		Metrics: metrics,
	}
	if pub != nil {
		acts.Publisher = pub
	}

	names, err := queues.ParseQueues(cfg.WorkerQueues)
	if err != nil {
		logger.Error("invalid worker queues", "error", err)
		os.Exit(1)
	}

	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   observability.NewTemporalSlogAdapter(logger),
	})
	if err != nil {
		logger.Error("unable to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	configs := queues.DefaultConfigs()
	workers := make([]worker.Worker, 0, len(names))
	for _, name := range names {
		qc := configs[name]
		w := worker.New(c, name, qc.Options)
		if qc.Workflows {
			w.RegisterWorkflow(workflows.ConformanceSuiteWorkflow)
		}
		w.RegisterActivity(acts)
		if err := w.Start(); err != nil {
			logger.Error("worker start failed", "queue", name, "error", err)
			os.Exit(1)
		}
		workers = append(workers, w)
		logger.Info("worker started", "queue", name, "mode", cfg.Mode, "workflow_version", versioning.ConformanceSuiteV1)
	}

	<-worker.InterruptCh()
	for _, w := range workers {
		w.Stop()
	}
	logger.Info("workers stopped")
}
