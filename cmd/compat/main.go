// Command compat starts and inspects conformance suite workflows.
//
// Usage:
//
//	compat trigger  [--suite FILE] [--cases a,b] [--parallel N] [--publish] [--wait]
//	compat status   --workflow-id WID
//	compat progress --workflow-id WID
//	compat result   --workflow-id WID
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/bodhi-compat/compatcheck/internal/suite"
	"github.com/bodhi-compat/compatcheck/internal/temporal/versioning"
	"github.com/bodhi-compat/compatcheck/internal/temporal/workflows"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "trigger":
		cmdTrigger(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "progress":
		cmdProgress(os.Args[2:])
	case "result":
		cmdResult(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: compat <trigger|status|progress|result> [flags]")
	os.Exit(1)
}

func dial() client.Client {
	c, err := client.Dial(client.Options{HostPort: os.Getenv("COMPAT_TEMPORAL_ADDRESS")})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	return c
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal output: %v", err)
	}
	fmt.Println(string(data))
}

func cmdTrigger(args []string) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	suiteFile := fs.String("suite", os.Getenv("COMPAT_SUITE_FILE"), "suite definition file (default: built-in suite)")
	caseList := fs.String("cases", "", "comma-separated case names (default: all)")
	candidate := fs.String("candidate", os.Getenv("COMPAT_CANDIDATE_MODEL"), "candidate label for published metrics")
	parallel := fs.Int("parallel", 1, "cases run at once")
	publish := fs.Bool("publish", false, "publish results when the suite finishes")
	wait := fs.Bool("wait", false, "wait for the workflow and print its result")
	_ = fs.Parse(args)

	cases, err := suite.Resolve(*suiteFile)
	if err != nil {
		log.Fatalf("load suite: %v", err)
	}
	var names []string
	for _, n := range strings.Split(*caseList, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	cases, err = suite.Select(cases, names...)
	if err != nil {
		log.Fatalf("select cases: %v", err)
	}

	suiteName := *suiteFile
	if suiteName == "" {
		suiteName = "builtin"
	}
	runID := uuid.NewString()
	input := workflows.SuiteInput{
		RunID:       runID,
		Suite:       suiteName,
		Candidate:   *candidate,
		Cases:       cases,
		MaxParallel: *parallel,
		Publish:     *publish,
	}

	c := dial()
	defer c.Close()

	run, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
		ID:        "compat-suite-" + runID,
		TaskQueue: versioning.QueueConformance,
	}, workflows.ConformanceSuiteWorkflow, input)
	if err != nil {
		log.Fatalf("failed to start workflow: %v", err)
	}
	fmt.Fprintf(os.Stderr, "started workflow %s (run=%s, cases=%d)\n", run.GetID(), run.GetRunID(), len(cases))

	if !*wait {
		return
	}
	var result workflows.SuiteResult
	if err := run.Get(context.Background(), &result); err != nil {
		log.Fatalf("workflow failed: %v", err)
	}
	printJSON(result)
	if result.Summary.Passed != result.Summary.Total {
		os.Exit(1)
	}
}

func workflowID(name string, args []string) string {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	wfID := fs.String("workflow-id", "", "workflow ID (required)")
	_ = fs.Parse(args)

	if *wfID == "" {
		fs.Usage()
		os.Exit(1)
	}
	return *wfID
}

func cmdStatus(args []string) {
	wfID := workflowID("status", args)
	c := dial()
	defer c.Close()

	desc, err := c.DescribeWorkflowExecution(context.Background(), wfID, "")
	if err != nil {
		log.Fatalf("failed to describe workflow: %v", err)
	}
	printJSON(map[string]any{
		"workflow_id": wfID,
		"status":      desc.WorkflowExecutionInfo.Status.String(),
		"start_time":  desc.WorkflowExecutionInfo.StartTime,
		"close_time":  desc.WorkflowExecutionInfo.CloseTime,
	})
}

func cmdProgress(args []string) {
	wfID := workflowID("progress", args)
	c := dial()
	defer c.Close()

	val, err := c.QueryWorkflow(context.Background(), wfID, "", workflows.QueryNameProgress)
	if err != nil {
		log.Fatalf("failed to query workflow: %v", err)
	}
	var p workflows.Progress
	if err := val.Get(&p); err != nil {
		log.Fatalf("failed to decode progress: %v", err)
	}
	printJSON(p)
}

func cmdResult(args []string) {
	wfID := workflowID("result", args)
	c := dial()
	defer c.Close()

	var result workflows.SuiteResult
	if err := c.GetWorkflow(context.Background(), wfID, "").Get(context.Background(), &result); err != nil {
		log.Fatalf("workflow failed: %v", err)
	}
	printJSON(result)
}
