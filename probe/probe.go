// Package probe performs the HTTPS reachability check against the download
// host and maps the outcome to a process exit code.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Target is the endpoint checked by the probe. It is a literal on purpose:
// the probe answers "can this machine reach the download host over HTTPS",
// nothing else, so the target must not be configurable.
const Target = "https://dl.espressif.com/"

// DefaultTimeout is the probe timeout in seconds used when no configuration
// file is provided. A value of 0 disables the timeout.
const DefaultTimeout = 10

type Result struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Err        error
}

// Success reports whether the probe observed exactly HTTP 200. Any other
// status code, including other 2xx codes, counts as a failure.
func (r Result) Success() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

// NewClient returns the HTTP client used for probes. The timeout is given in
// seconds, 0 means no timeout.
func NewClient(timeout float64) *http.Client {
	return &http.Client{
		Timeout: time.Duration(timeout * float64(time.Second)),
	}
}

// Run issues a single GET request against target and reads the full response
// body. A transport failure (DNS, TLS, refused connection, timeout) is
// returned in Result.Err; in that case no status code was observed and
// StatusCode is 0. There are no retries.
func Run(ctx context.Context, client *http.Client, target string) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Duration: time.Since(start), Err: fmt.Errorf("creating request: %w", err)}
	}

	res, err := client.Do(req)
	if err != nil {
		return Result{Duration: time.Since(start), Err: fmt.Errorf("performing request: %w", err)}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Result{StatusCode: res.StatusCode, Duration: time.Since(start), Err: fmt.Errorf("reading response body: %w", err)}
	}

	return Result{
		StatusCode: res.StatusCode,
		Body:       body,
		Duration:   time.Since(start),
	}
}

// Report writes the human-readable verdict for result to w and returns the
// process exit code: 0 for HTTP 200, 1 for everything else. Transport
// failures are routed into the same failure branch as non-200 statuses so
// that the process never exits 0 unless a 200 was observed.
func Report(w io.Writer, result Result) int {
	if result.Err != nil {
		fmt.Fprintf(w, "Request failed. Error: %v\n", result.Err)
		return 1
	}

	if result.StatusCode != http.StatusOK {
		fmt.Fprintf(w, "Request failed. Status code: %d\n", result.StatusCode)
		return 1
	}

	fmt.Fprintln(w, "Request successful!")
	fmt.Fprintf(w, "Response content: %s\n", result.Body)
	return 0
}
