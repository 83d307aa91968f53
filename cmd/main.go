package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/probekit/reachprobe/auth"
	"github.com/probekit/reachprobe/config"
	"github.com/probekit/reachprobe/exporter"
	"github.com/probekit/reachprobe/probe"

	"github.com/alecthomas/kingpin/v2"
	"github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"
)

var (
	sc = config.NewSafeConfig(prometheus.DefaultRegisterer)

	configFile   = kingpin.Flag("config.file", "Configuration file. If empty, built-in defaults are used.").Default("").String()
	serve        = kingpin.Flag("web.serve", "Run as a Prometheus exporter instead of performing a one-shot probe.").Default().Bool()
	toolkitFlags = webflag.AddFlags(kingpin.CommandLine, ":9642")
)

func init() {
	prometheus.MustRegister(versioncollector.NewCollector("reachprobe"))
}

func run(stopCh chan bool) int {
	kingpin.CommandLine.UsageWriter(os.Stdout)
	promslogConfig := &promslog.Config{}
	flag.AddFlags(kingpin.CommandLine, promslogConfig)
	kingpin.Version(version.Print("reachprobe"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()
	logger := promslog.New(promslogConfig)

	sc.ConfigFile = *configFile
	if err := sc.ReloadConfig(logger); err != nil {
		logger.Error("Error loading config", "err", err)
		return 1
	}

	if !*serve {
		return runProbe()
	}

	return runServe(logger, stopCh)
}

// runProbe performs the one-shot reachability check. The verdict goes to
// stdout and the return value becomes the process exit code: 0 only if the
// target answered with HTTP 200.
func runProbe() int {
	sc.RLock()
	timeout := sc.C.Probe.Timeout
	sc.RUnlock()

	result := probe.Run(context.Background(), probe.NewClient(timeout), probe.Target)
	return probe.Report(os.Stdout, result)
}

func runServe(logger *slog.Logger, stopCh chan bool) int {
	logger.Info("Starting reachprobe", "version", version.Info())
	logger.Info(version.BuildContext())
	logger.Info("Probe target", "target", probe.Target)

	hup := make(chan os.Signal, 1)
	reloadCh := make(chan chan error)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-hup:
				if err := sc.ReloadConfig(logger); err != nil {
					logger.Error("Error reloading config", "err", err)
					continue
				}
				logger.Info("Reloaded config")
			case rc := <-reloadCh:
				if err := sc.ReloadConfig(logger); err != nil {
					logger.Error("Error reloading config", "err", err)
					rc <- err
				} else {
					logger.Info("Reloaded config")
					rc <- nil
				}
			}
		}
	}()

	http.Handle("/-/reload", auth.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			fmt.Fprintf(w, "This endpoint requires a POST request.\n")
			return
		}

		rc := make(chan error)
		reloadCh <- rc
		if err := <-rc; err != nil {
			http.Error(w, fmt.Sprintf("failed to reload config: %s", err), http.StatusInternalServerError)
		}
	}), sc, logger))

	http.Handle("/metrics", auth.Auth(promhttp.Handler(), sc, logger))

	http.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	http.Handle("/probe", auth.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc.RLock()
		c := sc.C
		sc.RUnlock()
		exporter.Handler(w, r, c, logger, probe.NewClient(c.Probe.Timeout), probe.Target)
	}), sc, logger))

	http.Handle("/config", auth.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc.RLock()
		c, err := yaml.Marshal(sc.C)
		sc.RUnlock()
		if err != nil {
			logger.Warn("Error marshalling configuration", "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write(c)
	}), sc, logger))

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html>
		<head><title>Reachability Prober</title></head>
		<body>
		<h1>Reachability Prober</h1>
		<p>Target: ` + probe.Target + `</p>
		<ul>
		<li><a href='/metrics'>Metrics</a></li>
		<li><a href='/probe'>Probe</a></li>
		<li><a href='/config'>Config</a></li>
		</ul>
		<ul>
		<li>version: ` + version.Version + `</li>
		<li>revision: ` + version.GetRevision() + `</li>
		<li>branch: ` + version.Branch + `</li>
		<li>buildUser: ` + version.BuildUser + `</li>
		<li>buildDate: ` + version.BuildDate + `</li>
		<li>goVersion: ` + version.GoVersion + `</li>
		<li>platform: ` + version.GoOS + `/` + version.GoArch + `</li>
		</ul>
		</body>
		</html>`))
	})

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvc := make(chan struct{})
	term := make(chan os.Signal, 1)
	signal.Notify(term, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := web.ListenAndServe(srv, toolkitFlags, logger); err != nil {
			logger.Error("Error starting HTTP server", "err", err)
			close(srvc)
		}
	}()

	for {
		select {
		case <-stopCh:
			logger.Info("Service received stop message...")
			return 0
		case <-term:
			logger.Info("Received SIGTERM, exiting gracefully...")
			return 0
		case <-srvc:
			return 1
		}
	}
}
