package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/muurk/filecloud/internal/config"
	"github.com/muurk/filecloud/internal/discovery"
	"github.com/muurk/filecloud/internal/logging"
	"github.com/muurk/filecloud/internal/protocol/filecloud"
	"github.com/muurk/filecloud/internal/server"
	"github.com/muurk/filecloud/internal/store"
	"github.com/muurk/filecloud/internal/version"
)

// drainTimeout bounds how long shutdown waits for open sessions.
const drainTimeout = 10 * time.Second

var (
	host        string
	port        int
	bufferSize  int
	idleTimeout time.Duration
	logLevel    string
	dbPath      string
	usersTable  string
	filesTable  string
	metricsAddr string
	advertise   bool
	instance    string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the server",
	Long: `Start the filecloud server and the administrative console.

Settings come from the config file, then from flags. A port outside
1024-49151 falls back to 8000. If the listener cannot be bound the
console shuts the process down on its own.`,
	Example: `  # Listen on all interfaces, port 8000, in-memory store
  filecloud-server server

  # Persist users and files in sqlite
  filecloud-server server --db ./filecloud.db

  # Expose Prometheus metrics and advertise over mDNS
  filecloud-server server --metrics-addr 127.0.0.1:9100 --mdns

  # Debug logging of every message
  filecloud-server server --log-level debug`,
	RunE: runServer,
}

func init() {
	f := serverCmd.Flags()
	f.StringVar(&host, "host", "", "Bind address (empty = all interfaces)")
	f.IntVar(&port, "port", server.DefaultPort, "Listening port (1024-49151)")
	f.IntVar(&bufferSize, "buffer-size", server.DefaultBufferSize, "Maximum bytes read per message")
	f.DurationVar(&idleTimeout, "idle-timeout", 0, "Close sessions idle this long (0 = never)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default $"+logging.LogLevelEnvVar)
	f.StringVar(&dbPath, "db", "", "SQLite database file (selects the sqlite store)")
	f.StringVar(&usersTable, "users-table", "users", "Users table name")
	f.StringVar(&filesTable, "files-table", "files", "Files table name")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve admin HTTP (/metrics, /healthz, /sessions) on this address (disabled if empty)")
	f.BoolVar(&advertise, "mdns", false, "Advertise the server over mDNS")
	f.StringVar(&instance, "instance", "", "mDNS instance name (default: filecloud-<hostname>)")
}

// applyFlags copies explicitly set flags over the file configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host = host
	}
	if f.Changed("port") {
		cfg.Server.Port = port
	}
	if f.Changed("buffer-size") {
		cfg.Server.BufferSize = bufferSize
	}
	if f.Changed("idle-timeout") {
		cfg.Server.IdleTimeout = idleTimeout.String()
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if f.Changed("db") {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.Path = dbPath
	}
	if f.Changed("users-table") {
		cfg.Store.UsersTable = usersTable
	}
	if f.Changed("files-table") {
		cfg.Store.FilesTable = filesTable
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if f.Changed("mdns") {
		cfg.Discovery.Advertise = advertise
	}
	if f.Changed("instance") {
		cfg.Discovery.Instance = instance
	}
}

// newServer builds the server from a validated configuration. The port is
// applied through the server's setter, so an out-of-range value falls back
// to server.DefaultPort.
func newServer(cfg *config.Config, users store.AccountStore, files store.FileStore, metrics *server.Metrics) (*server.Server, error) {
	idle, err := cfg.IdleTimeoutDuration()
	if err != nil {
		return nil, err
	}
	srv, err := server.New(server.Options{
		Address:     cfg.Server.Host,
		Port:        cfg.Server.Port,
		BufferSize:  cfg.Server.BufferSize,
		IdleTimeout: idle,
		Factory:     filecloud.NewFactory(),
		Users:       users,
		Files:       files,
		UsersTable:  cfg.Store.UsersTable,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return srv, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Logging.Level); err != nil {
		return err
	}
	defer logging.Sync()

	users, files, release, err := openStores(cfg.Store, cfg.Logging.Level == "debug")
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := newServer(cfg, users, files, server.NewMetrics(reg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startErr := srv.Start()
	if startErr == nil {
		fmt.Fprintf(os.Stderr, "filecloud-server %s listening on %s\n", version.Version, srv.Addr())
	}

	if startErr == nil && cfg.Discovery.Advertise {
		adv, err := discovery.Advertise(cfg.Discovery.Instance, srv.Port(), discovery.TXT(map[string]string{
			"version":     version.Version,
			"buffer_size": strconv.Itoa(srv.BufferSize()),
		}))
		if err != nil {
			logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		} else {
			defer adv.Shutdown()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" && startErr == nil {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           server.NewAdminHandler(srv, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logging.Info("Serving admin HTTP", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	console := server.NewConsole(srv, os.Stdin, os.Stdout)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		console.SetPrompt("> ")
	}

	var sig server.ShutdownSignal
	g.Go(func() error {
		sig = console.Run(gctx)
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})
	groupErr := g.Wait()

	logging.Info("Console requested shutdown", zap.Stringer("reason", sig.Reason))
	if sig.Reason != server.ReasonBindInvalid {
		fmt.Fprintln(os.Stderr, "Shutting down...")
	}

	if srv.Running() {
		if err := srv.Stop(); err != nil {
			logging.Error("Error stopping server", zap.Error(err))
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := srv.Wait(waitCtx); err != nil {
			logging.Warn("Sessions still open after drain timeout",
				zap.Int("active_sessions", srv.GetActiveConnections()),
				zap.Duration("timeout", drainTimeout),
			)
		}
	}

	return errors.Join(startErr, groupErr)
}
