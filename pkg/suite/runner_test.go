package suite

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YuvalKandov/devops-assignment/pkg/config"
	"github.com/YuvalKandov/devops-assignment/pkg/probe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeNginx stands in for the server under test: an HTTPS listener that
// serves the welcome page and rejects requests past limit with 429, and
// a plain HTTP listener that answers 404 to everything.
type fakeNginx struct {
	https *httptest.Server
	http  *httptest.Server
	hits  atomic.Int64
}

func newFakeNginx(t *testing.T, limit int64) *fakeNginx {
	t.Helper()
	f := &fakeNginx{}

	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		if limit > 0 && f.hits.Add(1) > limit {
			c.String(http.StatusTooManyRequests, "429 Too Many Requests")
			return
		}
		c.String(http.StatusOK, "<h1>Hello from Nginx</h1>")
	})
	f.https = httptest.NewTLSServer(router)
	t.Cleanup(f.https.Close)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "404 Not Found", http.StatusNotFound)
	})
	f.http = httptest.NewServer(r)
	t.Cleanup(f.http.Close)

	return f
}

func (f *fakeNginx) config(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Host, cfg.HTTPSPort = splitHostPort(t, f.https.URL)
	_, cfg.HTTPPort = splitHostPort(t, f.http.URL)
	cfg.Timeout = 2 * time.Second
	cfg.BurstBackoff = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return &cfg
}

func splitHostPort(t *testing.T, raw string) (string, int) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func closedPort(t *testing.T) int {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	_, port := splitHostPort(t, server.URL)
	server.Close()
	return port
}

func newTestRunner(cfg *config.Config, cases []Case, out *bytes.Buffer) *Runner {
	return NewRunner(cfg, probe.NewProber(), cases, out, zerolog.Nop())
}

func TestRunner_AllPass(t *testing.T) {
	fake := newFakeNginx(t, 5)
	var out bytes.Buffer

	report := newTestRunner(fake.config(t), DefaultCases(), &out).Run(context.Background())

	assert.False(t, report.Failed(), out.String())
	assert.Equal(t, 3, report.PassedCount())
	assert.NotEmpty(t, report.ID)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "✓ HTTPS 200 test passed", lines[0])
	assert.Equal(t, "✓ HTTP 404 test passed", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "✓ Rate limiting test passed ("), lines[2])
	assert.True(t, strings.HasSuffix(lines[2], "/30 requests were rate limited)"), lines[2])
	assert.Equal(t, "All tests passed!", lines[4])
}

func TestRunner_HTTPSDownFailsAndContinues(t *testing.T) {
	fake := newFakeNginx(t, 5)
	cfg := fake.config(t)
	cfg.HTTPSPort = closedPort(t)
	cfg.BurstAttempts = 2

	var out bytes.Buffer
	report := newTestRunner(cfg, DefaultCases(), &out).Run(context.Background())

	assert.True(t, report.Failed())
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, KindFailed, report.Outcomes[0].Kind)
	assert.Equal(t, "Expected 200, got none", report.Outcomes[0].Message)
	// The 404 check still runs and passes
	assert.Equal(t, KindPassed, report.Outcomes[1].Kind)
	assert.Equal(t, KindFailed, report.Outcomes[2].Kind)

	assert.Contains(t, out.String(), "✗ test_https_success FAILED: Expected 200, got none\n")
	assert.Contains(t, out.String(), "✓ HTTP 404 test passed\n")
	assert.Contains(t, out.String(), "✗ test_rate_limiting FAILED: Expected some 429 responses after 2 attempts, got none.")
	assert.True(t, strings.HasSuffix(out.String(), "\nSome tests failed!\n"))
}

func TestHTTPSSuccess_MissingMarker(t *testing.T) {
	fake := newFakeNginx(t, 0)
	cfg := fake.config(t)
	cfg.ExpectedBody = "Goodbye"

	_, err := HTTPSSuccess(context.Background(), &Env{Config: cfg, Prober: probe.NewProber(), Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Equal(t, "Expected content not found", err.Error())
}

func TestHTTPError_WrongStatus(t *testing.T) {
	fake := newFakeNginx(t, 0)
	cfg := fake.config(t)
	// Plain HTTP against the TLS listener gets 400 from the Go TLS server
	cfg.HTTPPort = cfg.HTTPSPort

	env := &Env{Config: cfg, Prober: probe.NewProber(), Logger: zerolog.Nop()}
	_, err := HTTPError(context.Background(), env)
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Equal(t, "Expected 404, got 400", err.Error())
}

func TestRateLimiting_RetriesWholeBurst(t *testing.T) {
	// Limit sits between one and two bursts, so the first burst is all
	// 200s and the second one trips it.
	fake := newFakeNginx(t, 12)
	cfg := fake.config(t)
	cfg.BurstSize = 10

	env := &Env{Config: cfg, Prober: probe.NewProber(), Logger: zerolog.Nop()}
	msg, err := RateLimiting(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "Rate limiting test passed (8/10 requests were rate limited)", msg)
	assert.EqualValues(t, 20, fake.hits.Load())
}

func TestRateLimiting_NeverLimited(t *testing.T) {
	fake := newFakeNginx(t, 0)
	cfg := fake.config(t)
	cfg.BurstSize = 4
	cfg.BurstAttempts = 3

	env := &Env{Config: cfg, Prober: probe.NewProber(), Logger: zerolog.Nop()}
	_, err := RateLimiting(context.Background(), env)
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Equal(t,
		"Expected some 429 responses after 3 attempts, got none. Last results: [200, 200, 200, 200]",
		err.Error())
}

func TestRateLimiting_CancelledDuringBackoff(t *testing.T) {
	fake := newFakeNginx(t, 0)
	cfg := fake.config(t)
	cfg.BurstSize = 2
	cfg.BurstBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	env := &Env{Config: cfg, Prober: probe.NewProber(), Logger: zerolog.Nop()}
	_, err := RateLimiting(ctx, env)
	require.Error(t, err)
	assert.False(t, IsAssertion(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunner_ErrorAndPanicAreReportedAsErrors(t *testing.T) {
	fake := newFakeNginx(t, 0)
	cases := []Case{
		{Name: "boom", Run: func(context.Context, *Env) (string, error) {
			return "", errors.New("unexpected")
		}},
		{Name: "panics", Run: func(context.Context, *Env) (string, error) {
			panic("bad state")
		}},
		{Name: "fine", Run: func(context.Context, *Env) (string, error) {
			return "fine passed", nil
		}},
	}

	var out bytes.Buffer
	report := newTestRunner(fake.config(t), cases, &out).Run(context.Background())

	assert.True(t, report.Failed())
	assert.Equal(t, 1, report.PassedCount())
	assert.Equal(t, KindError, report.Outcomes[0].Kind)
	assert.Equal(t, KindError, report.Outcomes[1].Kind)
	assert.Equal(t,
		"✗ boom ERROR: unexpected\n✗ panics ERROR: panic: bad state\n✓ fine passed\n\nSome tests failed!\n",
		out.String())
}

func TestSelectCases(t *testing.T) {
	all := DefaultCases()

	selected, err := SelectCases(all, nil)
	require.NoError(t, err)
	assert.Len(t, selected, 3)

	// Order follows the default list, not the argument
	selected, err = SelectCases(all, []string{"test_rate_limiting", " test_https_success"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "test_https_success", selected[0].Name)
	assert.Equal(t, "test_rate_limiting", selected[1].Name)

	_, err = SelectCases(all, []string{"test_nope"})
	assert.Error(t, err)
}

func TestFailf(t *testing.T) {
	err := Failf("Expected %d, got %s", 200, "none")
	assert.Equal(t, "Expected 200, got none", err.Error())
	assert.True(t, IsAssertion(err))
	assert.True(t, IsAssertion(errors.Join(errors.New("context"), err)))
	assert.False(t, IsAssertion(errors.New("plain")))
}
