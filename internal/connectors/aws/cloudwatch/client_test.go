package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
)

type mockCWAPI struct {
	inputs []*cw.PutMetricDataInput
	err    error
}

func (m *mockCWAPI) PutMetricData(_ context.Context, in *cw.PutMetricDataInput, _ ...func(*cw.Options)) (*cw.PutMetricDataOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, in)
	return &cw.PutMetricDataOutput{}, nil
}

func datum(t *testing.T, in *cw.PutMetricDataInput, name string) cwtypes.MetricDatum {
	t.Helper()
	for _, d := range in.MetricData {
		if aws.ToString(d.MetricName) == name {
			return d
		}
	}
	t.Fatalf("metric %s not published", name)
	return cwtypes.MetricDatum{}
}

func TestPublish(t *testing.T) {
	mock := &mockCWAPI{}
	pub := NewFromAPI(mock, "")
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	results := []conformance.Result{
		{Case: "format_json", Outcome: conformance.OutcomePassed, Duration: 1500 * time.Millisecond},
		{Case: "stream_simple", Outcome: conformance.OutcomeMismatch, Duration: 2 * time.Second},
		{Case: "models_list", Outcome: conformance.OutcomeError},
	}
	err := pub.Publish(context.Background(), Run{Suite: "builtin", Candidate: "llama3:instruct"}, results)
	require.NoError(t, err)

	require.Len(t, mock.inputs, 1)
	in := mock.inputs[0]
	assert.Equal(t, DefaultNamespace, aws.ToString(in.Namespace))
	assert.Len(t, in.MetricData, 6)

	assert.InDelta(t, 1.0, aws.ToFloat64(datum(t, in, "CasesPassed").Value), 0)
	assert.InDelta(t, 1.0, aws.ToFloat64(datum(t, in, "CasesFailed").Value), 0)
	errored := datum(t, in, "CasesErrored")
	assert.InDelta(t, 1.0, aws.ToFloat64(errored.Value), 0)
	assert.Equal(t, fixed, aws.ToTime(errored.Timestamp))
	require.Len(t, errored.Dimensions, 2)
	assert.Equal(t, "llama3:instruct", aws.ToString(errored.Dimensions[1].Value))

	dur := in.MetricData[3]
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, dur.Unit)
	assert.InDelta(t, 1500.0, aws.ToFloat64(dur.Value), 0)
	require.Len(t, dur.Dimensions, 4)
	assert.Equal(t, "format_json", aws.ToString(dur.Dimensions[2].Value))
	assert.Equal(t, "passed", aws.ToString(dur.Dimensions[3].Value))
}

func TestPublish_Batches(t *testing.T) {
	mock := &mockCWAPI{}
	pub := NewFromAPI(mock, "Custom")

	results := make([]conformance.Result, 1200)
	for i := range results {
		results[i] = conformance.Result{Case: fmt.Sprintf("c%d", i), Outcome: conformance.OutcomePassed}
	}
	require.NoError(t, pub.Publish(context.Background(), Run{Suite: "big"}, results))
	require.Len(t, mock.inputs, 2)
	assert.Len(t, mock.inputs[0].MetricData, 1000)
	assert.Len(t, mock.inputs[1].MetricData, 203)
	assert.Equal(t, "Custom", aws.ToString(mock.inputs[1].Namespace))
}

func TestPublish_Error(t *testing.T) {
	mock := &mockCWAPI{err: errors.New("throttled")}
	pub := NewFromAPI(mock, "")
	err := pub.Publish(context.Background(), Run{Suite: "s"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloudwatch: put metric data")
}
