// Package mcpserver exposes conformance checks via MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/diff"
	"github.com/bodhi-compat/compatcheck/internal/suite"
)

// Runner runs conformance cases.
type Runner interface {
	Run(ctx context.Context, c conformance.Case) conformance.Result
	RunSuite(ctx context.Context, cases []conformance.Case, onResult func(conformance.Result)) []conformance.Result
}

// RegisterTools registers all conformance MCP tools on the given server.
func RegisterTools(server *mcp.Server, runner Runner, cases []conformance.Case) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "diff_values",
			Description: "Structurally diff two JSON documents, optionally ignoring sequence order and excluded paths",
		},
		diffValuesHandler(),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_cases",
			Description: "List the conformance cases with their operation and streaming mode",
		},
		listCasesHandler(cases),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "run_case",
			Description: "Run one conformance case against the reference and candidate services",
		},
		runCaseHandler(runner, cases),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "run_suite",
			Description: "Run several conformance cases (all when none are named) and summarize outcomes",
		},
		runSuiteHandler(runner, cases),
	)
}

type diffOutput struct {
	Empty  bool        `json:"empty"`
	Report diff.Report `json:"report"`
}

func diffValuesHandler() mcp.ToolHandlerFor[diff.Request, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input diff.Request) (*mcp.CallToolResult, any, error) {
		rep, err := input.Do()
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(diffOutput{Empty: rep.Empty(), Report: rep})
	}
}

type listCasesInput struct{}

type caseInfo struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Operation   conformance.Operation `json:"operation"`
	Streaming   bool                  `json:"streaming"`
}

func listCasesHandler(cases []conformance.Case) mcp.ToolHandlerFor[listCasesInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ listCasesInput) (*mcp.CallToolResult, any, error) {
		out := make([]caseInfo, len(cases))
		for i, c := range cases {
			out[i] = caseInfo{Name: c.Name, Description: c.Description, Operation: c.Operation, Streaming: c.Streaming}
		}
		return textResult(out)
	}
}

type runCaseInput struct {
	Case string `json:"case"`
}

func runCaseHandler(runner Runner, cases []conformance.Case) mcp.ToolHandlerFor[runCaseInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input runCaseInput) (*mcp.CallToolResult, any, error) {
		if input.Case == "" {
			return errorResult("case is required"), nil, nil
		}
		c, err := suite.Lookup(cases, input.Case)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		res := runner.Run(ctx, c)
		return textResult(res)
	}
}

type runSuiteInput struct {
	Cases []string `json:"cases,omitempty"`
}

type runSuiteOutput struct {
	Summary conformance.Summary  `json:"summary"`
	Results []conformance.Result `json:"results"`
}

func runSuiteHandler(runner Runner, cases []conformance.Case) mcp.ToolHandlerFor[runSuiteInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input runSuiteInput) (*mcp.CallToolResult, any, error) {
		selected, err := suite.Select(cases, input.Cases...)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		results := runner.RunSuite(ctx, selected, nil)
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("run_suite: %w", ctx.Err())
		}
		return textResult(runSuiteOutput{Summary: conformance.Summarize(results), Results: results})
	}
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
