// Package versioning defines workflow versions and task queue names.
package versioning

const (
	// Workflow versions for determinism tracking.
	ConformanceSuiteV1 = "conformance-suite-v1"

	// Task queues. Case execution talks to both collaborators; publishing
	// only needs CloudWatch credentials.
	QueueConformance = "compat-conformance"
	QueuePublish     = "compat-publish"
)
