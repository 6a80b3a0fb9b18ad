// Command decoy runs the educational phishing-simulation form server and
// its operator subcommands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/decoy/internal/audit"
	"github.com/basket/decoy/internal/config"
	"github.com/basket/decoy/internal/cron"
	otelPkg "github.com/basket/decoy/internal/otel"
	"github.com/basket/decoy/internal/report"
	"github.com/basket/decoy/internal/sheet"
	"github.com/basket/decoy/internal/telemetry"
	"github.com/basket/decoy/internal/tracking"
	"github.com/basket/decoy/internal/web"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

SERVER MODE (default):
  %s                          Start the form server
  %s -addr 0.0.0.0:8411       Serve on a specific address

SUBCOMMANDS:
  %s report                   Generate the analytics report and CSV export
  %s export [-out <file>]     Write the anonymized CSV (default: stdout)
  %s reset -yes               Destroy all stored session data
  %s status                   Show server health status (/healthz)
  %s doctor [-json]           Run deployment diagnostics

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  DECOY_HOME              Data directory (default: ~/.decoy)
  DECOY_BIND_ADDR         Listen address override
  DECOY_ADMIN_TOKEN       Bearer token for /admin endpoints
  DECOY_DB_PATH           SQLite database path override
  DECOY_LOG_LEVEL         Log level override (debug, info, warn, error)

EXAMPLES:
  Start the server:       %s
  One-shot report:        %s report
  Wipe all data:          %s reset -yes
`, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	loadDotEnv(".env")

	addr := flag.String("addr", "", "listen address override (serve mode)")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subcommand logs stay out of the way of the command's own output.
	quietLogs := isatty.IsTerminal(os.Stdout.Fd())

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "report":
			os.Exit(runReportCommand(ctx, args[1:], quietLogs))
		case "export":
			os.Exit(runExportCommand(ctx, args[1:], quietLogs))
		case "reset":
			os.Exit(runResetCommand(ctx, args[1:], quietLogs))
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	runServe(ctx, *addr)
}

func runServe(ctx context.Context, addrOverride string) {
	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}
	if addrOverride != "" {
		cfg.BindAddr = addrOverride
	}

	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded",
		"config_fingerprint", cfg.Fingerprint(),
		"version", Version,
	)

	otelProvider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(ctx)
	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	grid, gridCloser, err := openGrid(cfg, logger)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	if gridCloser != nil {
		defer gridCloser()
	}
	logger.Info("startup phase", "phase", "store_opened", "backend", cfg.Store.Backend)

	tracker := tracking.NewTracker(grid, logger)
	tracker.SetHealHook(func() {
		metrics.SchemaHeals.Add(context.Background(), 1)
	})
	if err := tracker.EnsureSchema(ctx); err != nil {
		fatalStartup(logger, "E_SCHEMA_INIT", err)
	}

	classifier := tracking.NewClassifier(cfg.Filter)
	classifier.StartEviction(ctx, 10*time.Minute, time.Hour)

	srv, err := web.New(web.Config{
		Tracker:           tracker,
		Classifier:        classifier,
		Logger:            logger,
		AdminToken:        cfg.Admin.Token,
		RateLimit:         cfg.RateLimit,
		ConfigFingerprint: cfg.Fingerprint(),
		Tracer:            otelProvider.Tracer,
		Metrics:           metrics,
	})
	if err != nil {
		fatalStartup(logger, "E_SERVER_INIT", err)
	}
	srv.StartEviction(ctx)

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv.Handler(),
	}
	serverErr := make(chan error, 1)
	lc := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
		},
	}
	ln, err := lc.Listen(ctx, "tcp", cfg.BindAddr)
	if err != nil {
		if isAddrInUse(err) {
			err = fmt.Errorf("%w\n\n  %s is already in use; stop the existing process or change bind_addr in config.yaml", err, cfg.BindAddr)
		}
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	go func() {
		logger.Info("form server listening", "addr", cfg.BindAddr)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Scheduled report regeneration.
	runner := report.NewRunner(tracker, cfg.Report.OutputDir, logger)
	runner.ReportDuration = metrics.ReportDuration
	cronSched := cron.NewScheduler(cron.Config{
		Schedule: cfg.Report.Schedule,
		Logger:   logger,
		Job: func(jobCtx context.Context) error {
			_, err := runner.Run(jobCtx)
			return err
		},
	})
	if err := cronSched.Start(ctx); err != nil {
		fatalStartup(logger, "E_CRON_START", err)
	}
	defer cronSched.Stop()

	// Hot-reload classifier rules when config.yaml changes on disk.
	confWatcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := confWatcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable, hot-reload disabled", "error", err)
	} else {
		go func() {
			for range confWatcher.Events() {
				reloaded, err := config.LoadFrom(cfg.HomeDir)
				if err != nil {
					logger.Error("config reload failed, keeping previous rules", "error", err)
					continue
				}
				classifier.Reconfigure(reloaded.Filter)
				logger.Info("classifier rules reloaded",
					"config_fingerprint", reloaded.Fingerprint())
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// openGrid opens the configured row-grid backend. The returned closer is
// nil for the memory backend.
func openGrid(cfg config.Config, logger *slog.Logger) (sheet.Grid, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Warn("using in-memory store: data is lost on exit")
		return sheet.NewMemoryGrid(), nil, nil
	case "sqlite", "":
		g, err := sheet.OpenSQLite(cfg.Store.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"decoy","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func isAddrInUse(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return strings.Contains(err.Error(), "address already in use")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

// openTracker is the shared subcommand path: load config, open the store,
// build a tracker. The caller owns the returned cleanup func.
func openTracker(quietLogs bool) (*tracking.Tracker, config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("config load: %w", err)
	}
	if err := audit.Init(cfg.HomeDir); err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("audit init: %w", err)
	}
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs)
	if err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("logger init: %w", err)
	}
	grid, gridCloser, err := openGrid(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, config.Config{}, nil, fmt.Errorf("open store: %w", err)
	}
	cleanup := func() {
		if gridCloser != nil {
			gridCloser()
		}
		closer.Close()
	}
	return tracking.NewTracker(grid, logger), cfg, cleanup, nil
}
