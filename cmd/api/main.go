// Command api runs the HTTP API server for compatibility checks.
package main

import (
	"context"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bodhi-compat/compatcheck/internal/api"
	"github.com/bodhi-compat/compatcheck/internal/config"
	"github.com/bodhi-compat/compatcheck/internal/connectors"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/suite"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		observability.InitLogger("error").Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	shutdown, err := observability.Setup(ctx, "compat-api", cfg.OTelEnabled)
	if err != nil {
		logger.Error("otel init failed", "error", err)
	} else {
		defer shutdown(context.Background())
	}

	cases, err := suite.Resolve(cfg.SuiteFile)
	if err != nil {
		logger.Error("load suite failed", "error", err)
		os.Exit(1)
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

	oidcCfg := api.OIDCConfig{
		IssuerURL: cfg.OIDCIssuer,
		Audience:  cfg.OIDCAudience,
		Enabled:   cfg.OIDCEnabled(),
	}
	srv, err := api.New(ctx, runner, cases, cfg.CORSOrigins, oidcCfg)
	if err != nil {
		logger.Error("api init failed", "error", err)
		os.Exit(1)
	}

	var handler http.Handler = srv
	if cfg.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "compat-api")
	}

	addr := ":" + cfg.APIPort
	logger.Info("starting API server", "addr", addr, "mode", cfg.Mode, "cases", len(cases), "oidc_enabled", oidcCfg.Enabled)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
