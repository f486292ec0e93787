// compat-compare runs a conformance suite against the reference and candidate
// services and prints the results as JSON.
// Exit code 0 = every case passed. Exit code 1 = at least one case failed.
// Exit code 2 = error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/bodhi-compat/compatcheck/internal/config"
	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/connectors"
	"github.com/bodhi-compat/compatcheck/internal/connectors/aws/cloudwatch"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/suite"
)

type report struct {
	Summary conformance.Summary  `json:"summary"`
	Results []conformance.Result `json:"results"`
}

func main() {
	suiteFile := flag.String("suite", "", "suite definition file (default: built-in suite or COMPAT_SUITE_FILE)")
	caseList := flag.String("cases", "", "comma-separated case names to run (default: all)")
	list := flag.Bool("list", false, "list case names and exit")
	publish := flag.Bool("publish", false, "publish results to CloudWatch (requires COMPAT_CLOUDWATCH_NAMESPACE)")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	if *suiteFile == "" {
		*suiteFile = cfg.SuiteFile
	}

	logger := observability.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := observability.Setup(ctx, "compat-compare", cfg.OTelEnabled)
	if err != nil {
		logger.Error("otel init failed", "error", err)
	} else {
		defer shutdown(context.Background())
	}

	cases, err := suite.Resolve(*suiteFile)
	if err != nil {
		logger.Error("load suite failed", "error", err)
		os.Exit(2)
	}
	if *list {
		for _, n := range suite.Names(cases) {
			fmt.Println(n)
		}
		return
	}
	cases, err = suite.Select(cases, splitList(*caseList)...)
	if err != nil {
		logger.Error("select cases failed", "error", err)
		os.Exit(2)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(2)
	}
	runner, err := connectors.NewRunner(cfg, logger, metrics)
	if err != nil {
		logger.Error("build runner failed", "error", err)
		os.Exit(2)
	}

	logger.Info("running suite", "mode", cfg.Mode, "cases", len(cases), "parallel", cfg.MaxParallel)
	results := runner.RunSuite(ctx, cases, func(res conformance.Result) {
		logger.Debug("case finished", "case", res.Case, "outcome", res.Outcome)
	})
	summary := conformance.Summarize(results)

	out, err := json.MarshalIndent(report{Summary: summary, Results: results}, "", "  ")
	if err != nil {
		logger.Error("marshal result failed", "error", err)
		os.Exit(2)
	}
	fmt.Println(string(out))

	if *publish {
		pub, err := connectors.NewPublisher(ctx, cfg)
		switch {
		case err != nil:
			logger.Error("publisher init failed", "error", err)
			os.Exit(2)
		case pub == nil:
			logger.Warn("publishing skipped, COMPAT_CLOUDWATCH_NAMESPACE not set")
		default:
			run := cloudwatch.Run{Suite: suiteName(*suiteFile), Candidate: cfg.Candidate.Model}
			if err := pub.Publish(ctx, run, results); err != nil {
				logger.Error("publish failed", "error", err)
				os.Exit(2)
			}
		}
	}

	if summary.Errored > 0 {
		logger.Error("cases could not be evaluated", "errored", summary.Errored)
		os.Exit(2)
	}
	if summary.Failed > 0 {
		logger.Warn("incompatibility detected", "failed", summary.Failed, "by_outcome", summary.ByOutcome)
		os.Exit(1)
	}
	logger.Info("all cases passed", "total", summary.Total)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func suiteName(file string) string {
	if file == "" {
		return "builtin"
	}
	return file
}
