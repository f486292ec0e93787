// Command mcp-compat runs the MCP tool server for compatibility checks.
// Uses stdio transport for integration with AI assistants.
package main

import (
	"context"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bodhi-compat/compatcheck/internal/config"
	"github.com/bodhi-compat/compatcheck/internal/connectors"
	"github.com/bodhi-compat/compatcheck/internal/mcpserver"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/suite"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		observability.InitLogger("error").Error("config error", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol; logs go to stderr.
	logger := observability.InitLogger(cfg.LogLevel)

	cases, err := suite.Resolve(cfg.SuiteFile)
	if err != nil {
		logger.Error("load suite failed", "error", err)
		os.Exit(1)
	}
	runner, err := connectors.NewRunner(cfg, logger, nil)
	if err != nil {
		logger.Error("build runner failed", "error", err)
		os.Exit(1)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "compatcheck",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterTools(server, runner, cases)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
