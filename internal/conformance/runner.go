package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bodhi-compat/compatcheck/internal/diff"
	"github.com/bodhi-compat/compatcheck/internal/exclude"
	"github.com/bodhi-compat/compatcheck/internal/observability"
	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// usageKey is the response field holding token accounting.
const usageKey = "usage"

// Runner evaluates cases against a reference and a candidate collaborator.
// Logger, Metrics and Tracer are optional.
type Runner struct {
	Reference  Collaborator
	Candidate  Collaborator
	Classifier stream.Classifier
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
	// MaxParallel bounds how many cases RunSuite evaluates at once. Values
	// below one mean one.
	MaxParallel int
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return observability.Tracer()
}

func (r *Runner) classifier() stream.Classifier {
	if r.Classifier.Terminal == nil {
		return stream.OpenAI
	}
	return r.Classifier
}

// RunSuite evaluates independent cases with bounded parallelism. A failing
// case never stops the others. onResult, when set, is called once per case
// as it finishes, never concurrently. Results are returned in case order.
func (r *Runner) RunSuite(ctx context.Context, cases []Case, onResult func(Result)) []Result {
	results := make([]Result, len(cases))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(1, r.MaxParallel))
	for i, c := range cases {
		g.Go(func() error {
			res := r.Run(ctx, c)
			results[i] = res
			if onResult != nil {
				mu.Lock()
				onResult(res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return results
}

// Run evaluates one case. The reference response is fully collected before
// the candidate is contacted.
func (r *Runner) Run(ctx context.Context, c Case) (res Result) {
	start := time.Now()
	ctx, span := r.tracer().Start(ctx, "conformance.case",
		trace.WithAttributes(
			attribute.String("case", c.Name),
			attribute.String("operation", string(c.Operation)),
			attribute.Bool("streaming", c.Streaming),
		),
	)
	res = Result{Case: c.Name}

	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Outcome))
		}
		span.End()
		r.record(ctx, res)
	}()

	p, err := c.compile()
	if err != nil {
		return errorResult(res, err)
	}

	obs := make(map[Side]observation, len(Sides))
	for _, side := range Sides {
		o, err := r.collect(ctx, side, c, p)
		if err != nil {
			return failedCollection(res, side, err)
		}
		obs[side] = o
	}
	return evaluate(res, p, c.Streaming, obs[SideReference], obs[SideCandidate])
}

func (r *Runner) collaborator(side Side) Collaborator {
	if side == SideReference {
		return r.Reference
	}
	return r.Candidate
}

func (r *Runner) collect(ctx context.Context, side Side, c Case, p *plan) (observation, error) {
	coll := r.collaborator(side)
	if coll == nil {
		return observation{}, fmt.Errorf("%s: no collaborator configured", side)
	}
	req := Request{Case: c.Name, Operation: c.Operation, Stimulus: c.Stimulus}

	ctx, span := r.tracer().Start(ctx, "conformance.collect",
		trace.WithAttributes(attribute.String("side", string(side))),
	)
	defer span.End()

	if !c.Streaming {
		v, err := coll.Complete(ctx, req)
		if err != nil {
			return observation{}, fmt.Errorf("%s %s: %w", side, c.Operation, err)
		}
		return observation{side: side, value: v}, nil
	}

	src, err := coll.Stream(ctx, req)
	if err != nil {
		return observation{}, fmt.Errorf("%s open stream: %w", side, err)
	}
	agg, err := stream.Aggregate(ctx, src, r.classifier())
	if err != nil {
		var fe *stream.FaultError
		if errors.As(err, &fe) {
			fe.Side = string(side)
		}
		return observation{}, err
	}
	if r.Metrics != nil {
		r.Metrics.RecordFragments(ctx, string(side), agg.Len())
	}
	span.SetAttributes(attribute.Int("fragments", agg.Len()))
	return observation{side: side, value: agg.Tree(p.layout), agg: agg, layout: p.layout}, nil
}

func (r *Runner) record(ctx context.Context, res Result) {
	log := r.logger().With("case", res.Case, "outcome", string(res.Outcome), "duration", res.Duration)
	if res.Passed() {
		log.Info("case passed")
	} else {
		log.Warn("case failed", "error", res.Err, "diagnostic", res.Diagnostic)
	}
	if r.Metrics == nil {
		return
	}
	r.Metrics.RecordCase(ctx, res.Case, string(res.Outcome), res.Duration)
	counts := make(map[string]int)
	for c, n := range res.Remaining.Counts() {
		counts[string(c)] = n
	}
	r.Metrics.RecordDiffEntries(ctx, res.Case, counts)
}

func errorResult(res Result, err error) Result {
	res.Outcome = OutcomeError
	res.Err = err
	res.Diagnostic = err.Error()
	return res
}

func failedCollection(res Result, side Side, err error) Result {
	var fe *stream.FaultError
	if !errors.As(err, &fe) {
		res = errorResult(res, err)
		res.FaultSide = side
		return res
	}
	res.Outcome = OutcomeFault
	res.Err = err
	res.FaultSide = side
	res.Partial = fe.Partial
	res.Diagnostic = err.Error()
	if fe.Partial != nil && fe.Partial.Len() > 0 {
		res.Diagnostic += "\npartial fragments:\n" + fe.Partial.Tree(stream.LayoutSequence).String()
	}
	return res
}

// observation is one side's normalized response.
type observation struct {
	side   Side
	value  tree.Value
	agg    *stream.Aggregation
	layout stream.Layout
}

func (o observation) usage() (tree.Value, bool) {
	src := o.value
	if o.agg != nil {
		ev, ok := o.agg.Summary()
		if !ok {
			return tree.Value{}, false
		}
		src = ev.Data
	}
	u, ok := src.Get(usageKey)
	if !ok || u.Kind() != tree.KindMapping {
		return tree.Value{}, false
	}
	return u, true
}

// finish returns the terminal finish reason and its path in the compared
// tree.
func (o observation) finish() (tree.Path, string, bool) {
	base, v := tree.Root(), o.value
	if o.agg != nil {
		ev, ok := o.agg.Terminal()
		if !ok {
			return tree.Path{}, "", false
		}
		base, v = o.agg.TerminalPath(o.layout), ev.Data
	}
	i, reason, ok := stream.FinishChoice(v)
	if !ok {
		return tree.Path{}, "", false
	}
	return base.Key("choices").Index(i).Key("finish_reason"), reason, true
}

func evaluate(res Result, p *plan, streaming bool, ref, cand observation) Result {
	opts := diff.Options{IgnoreOrder: !streaming, Exclude: p.rules}
	if !streaming {
		// Usage is compared below under its own policy.
		opts.Exclude = opts.Exclude.With(exclude.NewLiteral(tree.Root().Key(usageKey)))
	}
	report := diff.Diff(ref.value, cand.value, opts)
	report = report.Merge(usageReport(p.usage, ref, cand, p.rules))
	if p.finish {
		report = report.Merge(finishReport(ref, cand))
	}

	claimed, remaining, missing := claim(report, p.variances)
	res.Claimed, res.Remaining, res.Missing = claimed, remaining, missing

	var violations []error
	obs := map[Side]observation{SideReference: ref, SideCandidate: cand}
	for _, ck := range p.checks {
		for _, v := range ck.evaluate(obs) {
			violations = append(violations, v)
			res.Violations = append(res.Violations, v.Error())
		}
	}

	var errs []error
	var diag []string
	if !remaining.Empty() || len(missing) > 0 {
		res.Outcome = OutcomeMismatch
		errs = append(errs, &MismatchError{Remaining: remaining, Missing: missing})
		if !remaining.Empty() {
			diag = append(diag, "remaining differences:\n"+remaining.String())
		}
		for _, v := range missing {
			diag = append(diag, "declared variance not observed: "+v.String())
		}
	}
	if len(violations) > 0 {
		if res.Outcome == "" {
			res.Outcome = OutcomeSchemaViolation
		}
		errs = append(errs, violations...)
		diag = append(diag, res.Violations...)
	}
	if res.Outcome == "" {
		res.Outcome = OutcomePassed
		return res
	}
	res.Err = errors.Join(errs...)
	res.Diagnostic = strings.Join(diag, "\n")
	return res
}

// usageReport compares the usage payloads of both sides under policy. Paths
// are rooted at root.usage for direct and streamed responses alike.
func usageReport(policy UsagePolicy, ref, cand observation, rules exclude.Rules) diff.Report {
	if policy == UsageIgnore {
		return diff.Report{}
	}
	wrap := func(o observation) tree.Value {
		u, ok := o.usage()
		if !ok {
			return tree.Mapping(nil)
		}
		if policy != UsageCompare {
			u = tree.Mapping(nil)
		}
		return tree.Mapping(map[string]tree.Value{usageKey: u})
	}
	return diff.Diff(wrap(ref), wrap(cand), diff.Options{IgnoreOrder: true, Exclude: rules})
}

// finishReport yields a difference at the terminal finish_reason path when
// the two sides end for different reasons. It ignores exclusions.
func finishReport(ref, cand observation) diff.Report {
	rp, rr, rok := ref.finish()
	cp, cr, cok := cand.finish()
	if rok == cok && rr == cr {
		return diff.Report{}
	}
	switch {
	case rok && cok:
		return diff.NewReport(diff.Entry{Category: diff.ValueChanged, Path: rp, Old: tree.String(rr), New: tree.String(cr)})
	case rok:
		return diff.NewReport(diff.Entry{Category: diff.TypeChanged, Path: rp, Old: tree.String(rr), New: tree.Null()})
	default:
		return diff.NewReport(diff.Entry{Category: diff.TypeChanged, Path: cp, Old: tree.Null(), New: tree.String(cr)})
	}
}

// claim removes declared variances from r in declaration order.
func claim(r diff.Report, variances []compiledVariance) (claimed, rest diff.Report, missing []Variance) {
	rest = r
	for _, v := range variances {
		var got diff.Report
		got, rest = rest.Claim(v.Category, v.matcher, v.accept)
		if got.Empty() && !v.Optional {
			missing = append(missing, v.Variance)
		}
		claimed = claimed.Merge(got)
	}
	return claimed, rest, missing
}
