// Package cloudwatch publishes conformance suite outcomes as CloudWatch
// metrics.
package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "Compatcheck"

// maxDatums is the PutMetricData limit per request.
const maxDatums = 1000

// API is the subset of the CloudWatch client used by this package.
type API interface {
	PutMetricData(ctx context.Context, params *cw.PutMetricDataInput, optFns ...func(*cw.Options)) (*cw.PutMetricDataOutput, error)
}

// Publisher writes suite run metrics to CloudWatch.
type Publisher struct {
	api       API
	namespace string
	now       func() time.Time
}

// New creates a Publisher from an AWS config.
func New(cfg aws.Config, namespace string) *Publisher {
	return NewFromAPI(cw.NewFromConfig(cfg), namespace)
}

// NewFromAPI creates a Publisher from an explicit API implementation (for testing).
func NewFromAPI(api API, namespace string) *Publisher {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Publisher{api: api, namespace: namespace, now: time.Now}
}

// Run identifies a suite run.
type Run struct {
	Suite     string
	Candidate string
}

func (r Run) dimensions() []cwtypes.Dimension {
	dims := []cwtypes.Dimension{{Name: aws.String("Suite"), Value: aws.String(r.Suite)}}
	if r.Candidate != "" {
		dims = append(dims, cwtypes.Dimension{Name: aws.String("Candidate"), Value: aws.String(r.Candidate)})
	}
	return dims
}

// Publish writes passed, failed and errored counts for the run, plus one
// duration datum per case.
func (p *Publisher) Publish(ctx context.Context, run Run, results []conformance.Result) error {
	sum := conformance.Summarize(results)
	ts := aws.Time(p.now().UTC())
	dims := run.dimensions()

	count := func(name string, n int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Timestamp:  ts,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(n)),
		}
	}
	data := []cwtypes.MetricDatum{
		count("CasesPassed", sum.Passed),
		count("CasesFailed", sum.Failed),
		count("CasesErrored", sum.Errored),
	}
	for _, r := range results {
		caseDims := append(append([]cwtypes.Dimension(nil), dims...),
			cwtypes.Dimension{Name: aws.String("Case"), Value: aws.String(r.Case)},
			cwtypes.Dimension{Name: aws.String("Outcome"), Value: aws.String(string(r.Outcome))},
		)
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("CaseDuration"),
			Dimensions: caseDims,
			Timestamp:  ts,
			Unit:       cwtypes.StandardUnitMilliseconds,
			Value:      aws.Float64(float64(r.Duration.Milliseconds())),
		})
	}

	for start := 0; start < len(data); start += maxDatums {
		end := min(start+maxDatums, len(data))
		_, err := p.api.PutMetricData(ctx, &cw.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return fmt.Errorf("cloudwatch: put metric data: %w", err)
		}
	}
	return nil
}
