package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironsheep/drawdiff/internal/config"
	"github.com/ironsheep/drawdiff/internal/obs"
	"github.com/ironsheep/drawdiff/internal/pipeline"
	"github.com/ironsheep/drawdiff/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("drawdiff %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		case "mcp":
			os.Exit(serveMCP())
		}
	}
	if len(os.Args) != 4 {
		usage()
		os.Exit(2)
	}

	os.Exit(compareDirs(os.Args[1], os.Args[2], os.Args[3]))
}

// compareDirs runs one job and returns the process exit status.
func compareDirs(oldDir, newDir, outDir string) int {
	cfg := config.FromEnv()
	shutdownObs, log := obs.Init("drawdiff", cfg.LogLevel)
	defer func() { _ = shutdownObs(context.Background()) }()
	log.Debug("starting", "version", Version, "build_time", BuildTime, "commit", GitCommit)

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	snap, err := run(ctx, cfg, log, os.Stdout, oldDir, newDir, outDir)
	if err != nil {
		log.Error("comparison failed", "error", err)
		return 1
	}
	switch snap.State {
	case pipeline.JobFailed:
		return 1
	case pipeline.JobPartiallyFailed:
		return 3
	}
	return 0
}

// serveMCP runs the MCP server on stdin/stdout until stdin is closed.
func serveMCP() int {
	cfg := config.FromEnv()
	shutdownObs, log := obs.Init("drawdiff-mcp", cfg.LogLevel)
	defer func() { _ = shutdownObs(context.Background()) }()
	log.Debug("starting", "version", Version, "build_time", BuildTime, "commit", GitCommit)

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ad, err := openAdapters(cfg, cfg.ArtifactDir, log)
	if err != nil {
		log.Error("failed to open adapters", "error", err)
		return 1
	}
	defer ad.Close()

	engine, err := pipeline.New(cfg, nil, ad.opts...)
	if err != nil {
		log.Error("failed to start engine", "error", err)
		return 1
	}
	defer engine.Close()

	server.Version = Version
	srv := server.New(engine, cfg.DefaultDPI, log)
	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("server error", "error", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Println("drawdiff - compare two revisions of a drawing set")
	fmt.Println()
	fmt.Println("Usage: drawdiff <old-dir> <new-dir> <out-dir>")
	fmt.Println("       drawdiff mcp")
	fmt.Println()
	fmt.Println("Page images in each directory are paired by sorted file name.")
	fmt.Println("Overlays, overlays.pdf and report.xlsx are written under <out-dir>/<job-id>/.")
	fmt.Println()
	fmt.Println("The mcp command serves the comparison tools over MCP on stdin/stdout.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  DRAWDIFF_LOG_LEVEL=debug       Enable debug logging")
	fmt.Println("  DRAWDIFF_WORKERS=N             Pages compared in parallel")
	fmt.Println("  DRAWDIFF_UNIT_TIMEOUT=2m       Time budget per page")
	fmt.Println("  DRAWDIFF_METRICS_ADDR=:9090    Serve /metrics and /healthz")
	fmt.Println("  DRAWDIFF_DB_PATH=jobs.db       Journal jobs to SQLite")
	fmt.Println("  DRAWDIFF_REDIS_ADDR=host:6379  Publish page results to a Redis stream")
	fmt.Println("  DRAWDIFF_ARTIFACT_DIR=dir      Overlay directory for the mcp command")
	fmt.Println("  OSS_BUCKET=...                 Store artifacts in Alibaba Cloud OSS")
	fmt.Println()
	fmt.Println("Exit status is 1 when every page failed and 3 when some pages failed.")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           obs.WrapHTTP("drawdiff-metrics", mux),
		ReadHeaderTimeout: 3 * time.Second,
	}
	_ = srv.ListenAndServe()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		// second signal: hard exit
		select {
		case <-ch:
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()
	return ctx, cancel
}
