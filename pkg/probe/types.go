package probe

import (
	"strconv"
	"time"
)

// UserAgent identifies the tester to the server under test.
const UserAgent = "nginx-tester"

// DefaultTimeout is used when Fetch is called with a non-positive timeout.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of a single probe.
//
// A StatusCode of 0 means no response was received; Body then holds the
// error text and Err the underlying error.
type Result struct {
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether a response was received at all.
func (r Result) OK() bool {
	return r.StatusCode != 0
}

// Status renders the status code, or "none" when there was no response.
func (r Result) Status() string {
	if r.StatusCode == 0 {
		return "none"
	}
	return strconv.Itoa(r.StatusCode)
}

// BurstResult is the unordered collection of results from one burst.
type BurstResult struct {
	Results  []Result      `json:"results"`
	Duration time.Duration `json:"duration"`
}

// Count returns how many results carry the given status code.
func (b BurstResult) Count(code int) int {
	n := 0
	for _, r := range b.Results {
		if r.StatusCode == code {
			n++
		}
	}
	return n
}

// Failed returns how many probes got no response.
func (b BurstResult) Failed() int {
	return b.Count(0)
}

// Statuses lists each result's status, "none" for failures.
func (b BurstResult) Statuses() []string {
	out := make([]string, len(b.Results))
	for i, r := range b.Results {
		out[i] = r.Status()
	}
	return out
}
