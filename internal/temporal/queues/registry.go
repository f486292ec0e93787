// Package queues splits conformance work across Temporal task queues.
//
// Case execution and result publishing run on separate queues, each with
// its own worker concurrency.
package queues

import (
	"fmt"
	"slices"
	"strings"

	"go.temporal.io/sdk/worker"

	"github.com/bodhi-compat/compatcheck/internal/temporal/versioning"
)

// QueueConfig describes one task queue and the worker that polls it.
type QueueConfig struct {
	Name string
	// Short is the name accepted in COMPAT_WORKER_QUEUES besides Name.
	Short string
	// Workflows is set on the queue that hosts the suite workflow.
	Workflows bool
	Options   worker.Options
}

// table lists the queues in their canonical order. The first entry is
// polled when no queue is selected.
func table() []QueueConfig {
	return []QueueConfig{
		{
			// Case activities hold a collaborator call each; the rate
			// limiter and call budget bound them further.
			Name:      versioning.QueueConformance,
			Short:     "conformance",
			Workflows: true,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     8,
				MaxConcurrentWorkflowTaskExecutionSize: 4,
			},
		},
		{
			Name:  versioning.QueuePublish,
			Short: "publish",
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     2,
				MaxConcurrentWorkflowTaskExecutionSize: 1,
			},
		},
	}
}

// DefaultConfigs returns the worker configuration of every known queue,
// keyed by full queue name.
func DefaultConfigs() map[string]QueueConfig {
	t := table()
	out := make(map[string]QueueConfig, len(t))
	for _, q := range t {
		out[q.Name] = q
	}
	return out
}

// ParseQueues resolves a comma-separated selection such as
// "conformance,publish" to full queue names, keeping first-seen order and
// dropping repeats. Empty input selects the conformance queue.
func ParseQueues(raw string) ([]string, error) {
	t := table()
	resolve := func(name string) (string, bool) {
		for _, q := range t {
			if name == q.Name || name == q.Short {
				return q.Name, true
			}
		}
		return "", false
	}

	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		full, ok := resolve(name)
		if !ok {
			return nil, fmt.Errorf("unknown queue %q", name)
		}
		if !slices.Contains(out, full) {
			out = append(out, full)
		}
	}
	if len(out) == 0 {
		return []string{t[0].Name}, nil
	}
	return out, nil
}
