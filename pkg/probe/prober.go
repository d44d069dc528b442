package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"
)

// Prober sends probes to the server under test.
type Prober struct {
	httpClient *http.Client
}

// NewProber creates a prober. TLS verification is disabled: the server
// under test presents a self-signed certificate.
func NewProber() *Prober {
	// Bursts open many connections to a single host at once
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Prober{
		// No client timeout: each Fetch carries its own deadline
		httpClient: &http.Client{Transport: transport},
	}
}

// Close releases idle connections.
func (p *Prober) Close() {
	p.httpClient.CloseIdleConnections()
}

// Fetch sends a single GET request and returns the status code and body.
//
// Any HTTP response, 2xx or not, yields its status and body. Network
// failures never surface as an error return; they come back as a Result
// with no status code and the error text as body.
func (p *Prober) Fetch(ctx context.Context, url string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(err, startTime)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return failure(err, startTime)
	}
	defer resp.Body.Close()

	// Read fully so the connection can go back to the pool. A body cut
	// short by the deadline still counts since the status arrived.
	body, _ := io.ReadAll(resp.Body)

	return Result{
		StatusCode: resp.StatusCode,
		Body:       decode(body),
		Duration:   time.Since(startTime),
	}
}

func failure(err error, startTime time.Time) Result {
	return Result{
		Body:     err.Error(),
		Err:      err,
		Duration: time.Since(startTime),
	}
}

// decode treats the body as UTF-8, replacing invalid sequences.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

var defaultProber = NewProber()

// Fetch probes url with the package-level prober.
func Fetch(ctx context.Context, url string, timeout time.Duration) Result {
	return defaultProber.Fetch(ctx, url, timeout)
}
