package suite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YuvalKandov/devops-assignment/pkg/config"
	"github.com/YuvalKandov/devops-assignment/pkg/probe"

	"github.com/rs/zerolog"
)

// Env is what every test case gets to work with.
type Env struct {
	Config *config.Config
	Prober *probe.Prober
	Logger zerolog.Logger
}

// CaseFunc runs one test case. On success it returns the message printed
// after the check mark.
type CaseFunc func(ctx context.Context, env *Env) (string, error)

// Case is a named test case.
type Case struct {
	Name string
	Run  CaseFunc
}

// DefaultCases returns the built-in cases in execution order.
func DefaultCases() []Case {
	return []Case{
		{Name: "test_https_success", Run: HTTPSSuccess},
		{Name: "test_http_error", Run: HTTPError},
		{Name: "test_rate_limiting", Run: RateLimiting},
	}
}

// SelectCases keeps the cases whose names are listed, in their original
// order. An empty list selects everything.
func SelectCases(cases []Case, names []string) ([]Case, error) {
	if len(names) == 0 {
		return cases, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = true
	}

	var selected []Case
	for _, c := range cases {
		if wanted[c.Name] {
			selected = append(selected, c)
			delete(wanted, c.Name)
		}
	}

	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for n := range wanted {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown test cases: %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

// HTTPSSuccess checks that the HTTPS port answers 200 with the expected page.
func HTTPSSuccess(ctx context.Context, env *Env) (string, error) {
	url := env.Config.HTTPSURL()
	result := env.Prober.Fetch(ctx, url, env.Config.Timeout)

	env.Logger.Debug().
		Str("url", url).
		Str("status", result.Status()).
		Dur("duration", result.Duration).
		Msg("probe finished")

	if result.StatusCode != 200 {
		return "", Failf("Expected 200, got %s", result.Status())
	}
	if !strings.Contains(result.Body, env.Config.ExpectedBody) {
		return "", Failf("Expected content not found")
	}
	return "HTTPS 200 test passed", nil
}

// HTTPError checks that the plain HTTP port maps to 404.
func HTTPError(ctx context.Context, env *Env) (string, error) {
	url := env.Config.HTTPURL()
	result := env.Prober.Fetch(ctx, url, env.Config.Timeout)

	env.Logger.Debug().
		Str("url", url).
		Str("status", result.Status()).
		Dur("duration", result.Duration).
		Msg("probe finished")

	if result.StatusCode != 404 {
		return "", Failf("Expected 404, got %s", result.Status())
	}
	return "HTTP 404 test passed", nil
}

// RateLimiting sends bursts faster than the configured limit and expects
// some of them to be rejected with 429. Whole bursts are retried to ride
// out the limiter's window timing.
func RateLimiting(ctx context.Context, env *Env) (string, error) {
	cfg := env.Config
	url := cfg.HTTPSURL()

	var last probe.BurstResult
	for attempt := 1; attempt <= cfg.BurstAttempts; attempt++ {
		burst, err := env.Prober.Burst(ctx, url, cfg.BurstSize, cfg.Timeout)
		if err != nil {
			return "", fmt.Errorf("burst %d: %w", attempt, err)
		}
		last = burst

		limited := burst.Count(429)
		env.Logger.Info().
			Int("attempt", attempt).
			Int("requests", len(burst.Results)).
			Int("rate_limited", limited).
			Int("failed", burst.Failed()).
			Dur("duration", burst.Duration).
			Msg("burst finished")

		if limited > 0 {
			return fmt.Sprintf("Rate limiting test passed (%d/%d requests were rate limited)",
				limited, len(burst.Results)), nil
		}

		if attempt < cfg.BurstAttempts {
			if err := sleep(ctx, cfg.BurstBackoff); err != nil {
				return "", err
			}
		}
	}

	return "", Failf("Expected some 429 responses after %d attempts, got none. Last results: [%s]",
		cfg.BurstAttempts, strings.Join(last.Statuses(), ", "))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
