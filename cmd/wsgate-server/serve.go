package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/config"
	"github.com/muurk/wsgate/internal/discovery"
	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/metrics"
	"github.com/muurk/wsgate/internal/server"
	"github.com/muurk/wsgate/internal/tick"
	"github.com/muurk/wsgate/internal/version"
)

const shutdownTimeout = 5 * time.Second

var (
	address      string
	port         int
	workers      int
	logLevel     string
	tickInterval time.Duration
	statusEvery  int
	statusAddr   string
	announce     bool
	instanceName string
	pingInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebSocket server",
	Long: `Start the wsgate server and accept WebSocket sessions.

Values are read from the config file first; any flag given on the command
line overrides the file. Peers that stop answering pings for one ping
interval are disconnected.

With --status-addr the server also exposes /healthz, /sessions and
Prometheus /metrics over plain HTTP. With --announce it advertises itself
over mDNS so clients can use 'wsgate-client --discover'.`,
	Example: `  # Listen on the default 127.0.0.1:8080
  wsgate-server serve

  # Listen on all interfaces with two accept loops
  wsgate-server serve --address 0.0.0.0 --workers 2

  # Debug logging, status endpoint and mDNS announcement
  wsgate-server serve --log-level debug --status-addr :9090 --announce`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&address, "address", "", "Bind address (default from config: 127.0.0.1)")
	f.IntVar(&port, "port", 0, "Listen port (default from config: 8080)")
	f.IntVar(&workers, "workers", 0, "Accept loop goroutines (each handshake runs on its own goroutine)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.DurationVar(&tickInterval, "tick", 0, "Dispatch tick interval")
	f.IntVar(&statusEvery, "status-every", 0, "Broadcast SERVER_STATUS every N ticks (0 disables)")
	f.StringVar(&statusAddr, "status-addr", "", "Address for the HTTP status endpoint (disabled if empty)")
	f.BoolVar(&announce, "announce", false, "Advertise the server over mDNS")
	f.StringVar(&instanceName, "instance", "", "mDNS instance name (default: hostname)")
	f.DurationVar(&pingInterval, "ping-interval", 0, "Keepalive ping interval")
}

// loadServerConfig reads the config file and applies the flags that were
// given explicitly.
func loadServerConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("address") {
		cfg.Server.Address = address
	}
	if f.Changed("port") {
		cfg.Server.Port = port
	}
	if f.Changed("workers") {
		cfg.Server.Workers = workers
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if f.Changed("tick") {
		cfg.Server.TickInterval = tickInterval
	}
	if f.Changed("status-every") {
		cfg.Server.StatusEvery = statusEvery
	}
	if f.Changed("status-addr") {
		cfg.Server.StatusAddr = statusAddr
	}
	if f.Changed("announce") {
		cfg.Server.Announce = announce
	}
	if f.Changed("instance") {
		cfg.Server.InstanceName = instanceName
	}
	if f.Changed("ping-interval") {
		cfg.Session.PingInterval = pingInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" {
		level = "info"
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mt := metrics.New(metrics.DefaultNamespace)
	ops, err := server.ServerOperations(logger.Named("ops"))
	if err != nil {
		return fmt.Errorf("failed to build opcode table: %w", err)
	}

	nm := server.New(server.Config{
		Address: cfg.Server.Address,
		Port:    cfg.Server.Port,
		Workers: cfg.Server.Workers,
		Listen:  true,
		Session: cfg.Session.SessionOptions(),
	}, ops, server.WithLogger(logger.Named("network")), server.WithMetrics(mt))

	if err := nm.Run(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("wsgate-server started",
		zap.String("version", version.Full()),
		zap.String("addr", nm.Addr().String()),
		zap.Duration("tick", cfg.Server.TickInterval),
		zap.Duration("ping_interval", cfg.Session.PingInterval),
	)

	var status *server.StatusServer
	if cfg.Server.StatusAddr != "" {
		status, err = server.StartStatusServer(cfg.Server.StatusAddr, nm.StatusRouter(), logger.Named("status").Logger)
		if err != nil {
			shutdown(logger, nm, nil, nil)
			return err
		}
	}

	var announcer *discovery.Announcer
	if cfg.Server.Announce {
		announcer, err = discovery.Announce(cfg.Server.InstanceName, discovery.PortOf(nm.Addr()),
			[]string{"version=" + version.Version}, logger.Named("mdns").Logger)
		if err != nil {
			// The server is still reachable by address.
			logger.Warn("mDNS announcement failed", zap.Error(err))
		}
	}

	ticks := tick.NewManager(cfg.Server.TickInterval, logger.Named("tick"))
	ticks.Add("handleIncomingMessages", func() {
		nm.HandleIncomingMessages()
	})
	if cfg.Server.StatusEvery > 0 {
		ticks.Add("broadcastStatus", tick.Every(cfg.Server.StatusEvery, func() {
			nm.BroadcastStatus()
		}))
	}

	ticks.Run(ctx)

	logger.Info("Shutting down", zap.Uint64("ticks", ticks.Ticks()))
	shutdown(logger, nm, status, announcer)
	return nil
}

func shutdown(logger *logging.Logger, nm *server.NetworkManager, status *server.StatusServer, announcer *discovery.Announcer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if announcer != nil {
		announcer.Shutdown()
	}
	if status != nil {
		if err := status.Shutdown(ctx); err != nil {
			logger.Warn("Status endpoint shutdown failed", zap.Error(err))
		}
	}
	if err := nm.Finish(ctx); err != nil {
		logger.Warn("Sessions did not close in time", zap.Error(err))
	}
}
