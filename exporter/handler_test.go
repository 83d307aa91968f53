package exporter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/probekit/reachprobe/config"
	"github.com/probekit/reachprobe/probe"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

func runHandler(t *testing.T, c *config.Config, target string) (int, string) {
	t.Helper()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()

	Handler(w, req, c, logger, probe.NewClient(c.Probe.Timeout), target)

	res := w.Result()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res.StatusCode, string(data)
}

func TestHandler(t *testing.T) {
	t.Run("should return probe metrics for a reachable target", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		}))
		defer ts.Close()

		statusCode, data := runHandler(t, config.DefaultConfig(), ts.URL)

		require.Equal(t, http.StatusOK, statusCode)
		require.Contains(t, data, "probe_success 1")
		require.Contains(t, data, `probe_status_code{target="`+ts.URL+`"} 200`)
		require.Contains(t, data, "probe_duration_seconds")
		require.Contains(t, data, "probe_cached 0")
	})

	t.Run("should return valid exposition format", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		}))
		defer ts.Close()

		_, data := runHandler(t, config.DefaultConfig(), ts.URL)

		var parser expfmt.TextParser
		families, err := parser.TextToMetricFamilies(strings.NewReader(data))
		require.NoError(t, err)
		require.Len(t, families, 4)
	})

	t.Run("should report failure for status 503", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		statusCode, data := runHandler(t, config.DefaultConfig(), ts.URL)

		require.Equal(t, http.StatusOK, statusCode)
		require.Contains(t, data, "probe_success 0")
		require.Contains(t, data, `probe_status_code{target="`+ts.URL+`"} 503`)
	})

	t.Run("should report failure for status 201", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))
		defer ts.Close()

		_, data := runHandler(t, config.DefaultConfig(), ts.URL)

		require.Contains(t, data, "probe_success 0")
	})

	t.Run("should report transport failure with status code 0", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close()

		statusCode, data := runHandler(t, config.DefaultConfig(), ts.URL)

		require.Equal(t, http.StatusOK, statusCode)
		require.Contains(t, data, "probe_success 0")
		require.Contains(t, data, `probe_status_code{target="`+ts.URL+`"} 0`)
	})

	t.Run("should cache result", func(t *testing.T) {
		var requests atomic.Int64
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Write([]byte("OK"))
		}))
		defer ts.Close()

		cacheDuration := float64(10)
		c := config.DefaultConfig()
		c.Probe.Cache.Duration = &cacheDuration

		_, data1 := runHandler(t, c, ts.URL)
		require.Contains(t, data1, "probe_cached 0")

		_, data2 := runHandler(t, c, ts.URL)
		require.Contains(t, data2, "probe_cached 1")

		require.Equal(t, int64(1), requests.Load())
	})

	t.Run("should cache failed result when cache_on_error is set", func(t *testing.T) {
		var requests atomic.Int64
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		cacheDuration := float64(10)
		c := config.DefaultConfig()
		c.Probe.Cache.Duration = &cacheDuration
		c.Probe.Cache.CacheOnError = true

		_, data1 := runHandler(t, c, ts.URL)
		require.Contains(t, data1, "probe_success 0")
		require.Contains(t, data1, "probe_cached 0")

		_, data2 := runHandler(t, c, ts.URL)
		require.Contains(t, data2, "probe_success 0")
		require.Contains(t, data2, `probe_status_code{target="`+ts.URL+`"} 503`)
		require.Contains(t, data2, "probe_cached 1")

		require.Equal(t, int64(1), requests.Load())
	})

	t.Run("should re-probe failures when cache_on_error is not set", func(t *testing.T) {
		var requests atomic.Int64
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		cacheDuration := float64(10)
		c := config.DefaultConfig()
		c.Probe.Cache.Duration = &cacheDuration

		_, data1 := runHandler(t, c, ts.URL)
		require.Contains(t, data1, "probe_cached 0")

		_, data2 := runHandler(t, c, ts.URL)
		require.Contains(t, data2, "probe_cached 0")

		require.Equal(t, int64(2), requests.Load())
	})

	t.Run("should use expired cache on error", func(t *testing.T) {
		var fail atomic.Bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte("OK"))
		}))
		defer ts.Close()

		cacheDuration := 0.01
		c := config.DefaultConfig()
		c.Probe.Cache.Duration = &cacheDuration
		c.Probe.Cache.UseExpiredCacheOnError = true

		_, data1 := runHandler(t, c, ts.URL)
		require.Contains(t, data1, "probe_success 1")

		time.Sleep(50 * time.Millisecond)
		fail.Store(true)

		_, data2 := runHandler(t, c, ts.URL)
		require.Contains(t, data2, "probe_success 1")
		require.Contains(t, data2, "probe_cached 1")
	})
}
