package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/majewsky-labs/lloadd/internal/auditlog"
	"github.com/majewsky-labs/lloadd/internal/metrics"
	"github.com/majewsky-labs/lloadd/internal/proxyserver"
	"github.com/majewsky-labs/lloadd/internal/server"
	"github.com/majewsky-labs/lloadd/internal/store"
	"github.com/majewsky-labs/lloadd/internal/web"
	"github.com/majewsky-labs/lloadd/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func init() {
	// Suppress unstructured logs from ldapserver library globally
	// This must happen before any other code runs
	log.SetOutput(io.Discard)
	log.SetFlags(0)
	log.SetPrefix("")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lloadd",
	Short: "lloadd - an LDAP load-balancing proxy and directory server",
	Long:  "lloadd forwards LDAP traffic across a pool of upstream directory servers, and can itself run as one of those upstreams.",
}

func init() {
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

func initLogging(level, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	switch level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// startProxy runs the load-balancing front end: it never touches the
// entry store or audit log directly, only the connections and message
// bookkeeping in internal/proxyserver.
func startProxy() error {
	cfg := config.Load()
	cfg.Print()
	initLogging(cfg.Logging.Level, cfg.Logging.Format)

	m := metrics.New()
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port+1)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	srv := proxyserver.New(proxyserver.Config{
		ListenAddress:  cfg.Proxy.ListenAddress,
		UpstreamAddrs:  cfg.Proxy.UpstreamAddrs,
		MaxOpsInFlight: int64(cfg.Proxy.MaxOpsInFlight),
		Logger:         slog.Default(),
		Metrics:        m,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start proxy: %w", err)
	}

	slog.Info("lloadd proxy is running", "address", cfg.Proxy.ListenAddress, "metrics_address", metricsAddr)

	waitForSignal()

	slog.Info("Shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	return srv.Stop()
}

// startDirectory runs the authoritative LDAP server plus its
// supporting audit log and HTML admin console - a valid standalone
// upstream for the proxy to dial, or a single-node deployment on its
// own.
func startDirectory() error {
	cfg := config.Load()
	cfg.Print()
	initLogging(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	st := store.NewMemoryStore(cfg)
	if err := st.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()
	slog.Info("Directory store initialized successfully")

	audit := auditlog.NewStore(cfg.AuditLog)
	if err := audit.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	defer audit.Close()

	m := metrics.New()
	m.MustRegister(prometheus.DefaultRegisterer)

	srv := server.NewServer(cfg, st, version, audit, m)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	slog.Info("lloadd directory server is running", "address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port))

	webSrv, err := web.NewServer(cfg, st)
	if err != nil {
		return fmt.Errorf("failed to create admin console: %w", err)
	}
	go func() {
		if err := webSrv.Start(); err != nil {
			slog.Error("admin console failed", "error", err)
		}
	}()
	slog.Info("lloadd admin console is running", "address", fmt.Sprintf("%s:%d", cfg.WebUI.BindAddress, cfg.WebUI.Port))

	waitForSignal()

	slog.Info("Shutting down directory server")
	srv.Stop()
	return webSrv.Stop()
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start the LDAP load-balancing proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startProxy()
	},
}

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Start the authoritative directory server and admin console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startDirectory()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lloadd version %s (commit: %s)\n", version, commit)
	},
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check whether a local lloadd instance is accepting connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
		conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
		if err != nil {
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		defer conn.Close()
		fmt.Println("Health check passed")
		return nil
	},
}
