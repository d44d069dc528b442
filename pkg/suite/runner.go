package suite

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/YuvalKandov/devops-assignment/pkg/config"
	"github.com/YuvalKandov/devops-assignment/pkg/probe"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome kinds
const (
	KindPassed = "passed"
	KindFailed = "failed"
	KindError  = "error"
)

// Outcome is the result of one test case.
type Outcome struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Passed reports whether the case passed.
func (o Outcome) Passed() bool {
	return o.Kind == KindPassed
}

// Report collects the outcomes of one run.
type Report struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Failed reports whether any case failed or errored.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if !o.Passed() {
			return true
		}
	}
	return false
}

// PassedCount returns the number of passing cases.
func (r *Report) PassedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Passed() {
			n++
		}
	}
	return n
}

// Runner executes test cases in order against one target.
type Runner struct {
	env    *Env
	cases  []Case
	out    io.Writer
	logger zerolog.Logger
}

// NewRunner creates a runner. Pass/fail lines are written to out;
// diagnostics go to logger.
func NewRunner(cfg *config.Config, prober *probe.Prober, cases []Case, out io.Writer, logger zerolog.Logger) *Runner {
	return &Runner{
		env: &Env{
			Config: cfg,
			Prober: prober,
			Logger: logger,
		},
		cases:  cases,
		out:    out,
		logger: logger,
	}
}

// Run executes every case sequentially. A failing case never stops the
// ones after it.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
	}
	logger := r.logger.With().Str("run_id", report.ID).Logger()

	logger.Info().
		Str("https_url", r.env.Config.HTTPSURL()).
		Str("http_url", r.env.Config.HTTPURL()).
		Int("cases", len(r.cases)).
		Msg("Starting test run")

	for _, c := range r.cases {
		env := *r.env
		env.Logger = logger.With().Str("case", c.Name).Logger()

		outcome := r.runCase(ctx, c, &env)
		report.Outcomes = append(report.Outcomes, outcome)

		switch outcome.Kind {
		case KindPassed:
			fmt.Fprintf(r.out, "✓ %s\n", outcome.Message)
		case KindFailed:
			fmt.Fprintf(r.out, "✗ %s FAILED: %s\n", c.Name, outcome.Message)
		default:
			fmt.Fprintf(r.out, "✗ %s ERROR: %s\n", c.Name, outcome.Message)
		}
	}

	report.EndTime = time.Now()

	if report.Failed() {
		fmt.Fprintln(r.out, "\nSome tests failed!")
	} else {
		fmt.Fprintln(r.out, "\nAll tests passed!")
	}

	logger.Info().
		Int("passed", report.PassedCount()).
		Int("total", len(report.Outcomes)).
		Dur("duration", report.EndTime.Sub(report.StartTime)).
		Msg("Test run completed")

	return report
}

func (r *Runner) runCase(ctx context.Context, c Case, env *Env) Outcome {
	startTime := time.Now()
	msg, err := protect(ctx, c.Run, env)
	outcome := Outcome{
		Name:     c.Name,
		Duration: time.Since(startTime),
	}

	switch {
	case err == nil:
		outcome.Kind = KindPassed
		outcome.Message = msg
		env.Logger.Info().Dur("duration", outcome.Duration).Msg("case passed")
	case IsAssertion(err):
		outcome.Kind = KindFailed
		outcome.Message = err.Error()
		env.Logger.Warn().Err(err).Msg("case failed")
	default:
		outcome.Kind = KindError
		outcome.Message = err.Error()
		env.Logger.Error().Err(err).Msg("case errored")
	}
	return outcome
}

// protect runs a case, turning a panic into an error.
func protect(ctx context.Context, run CaseFunc, env *Env) (msg string, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	return run(ctx, env)
}
