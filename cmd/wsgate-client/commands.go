package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/wsgate/internal/analysis"
	"github.com/muurk/wsgate/internal/config"
	"github.com/muurk/wsgate/internal/discovery"
	"github.com/muurk/wsgate/internal/protocol"
	"github.com/muurk/wsgate/internal/ui"
)

var (
	configPath      string
	host            string
	port            int
	logLevel        string
	discover        bool
	instance        string
	connectTimeout  time.Duration
	responseTimeout time.Duration
	showStatus      bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: OS config dir/wsgate/config.yaml)")
	pf.StringVar(&host, "host", "", "Server host (default from config: 127.0.0.1)")
	pf.IntVar(&port, "port", 0, "Server port (default from config: 8080)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent if unset")
	pf.BoolVar(&discover, "discover", false, "Find the server over mDNS instead of --host/--port")
	pf.StringVar(&instance, "instance", "", "mDNS instance to pick with --discover (default: first found)")
	pf.DurationVar(&connectTimeout, "connect-timeout", 0, "How long to wait for the session to open")
	pf.DurationVar(&responseTimeout, "timeout", 0, "How long to wait for the reply")
	pf.BoolVar(&showStatus, "show-status", false, "Print SERVER_STATUS broadcasts received while waiting")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(discoverCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <file.csv>",
	Short: "Send a CSV file as a DATA_REQUEST",
	Long: `Send a CSV file to the server and print the DATA_RESPONSE.

The file is comma separated with a "dd.mm.yyyy hh:mm:ss" timestamp in the
first column. It is checked locally before sending. A relative path that
does not exist in the working directory is looked up next to the
wsgate-client executable.`,
	Example: `  # Send to the default server
  wsgate-client send data.csv

  # Send to a server found over mDNS
  wsgate-client send data.csv --discover`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var pingCmd = &cobra.Command{
	Use:   "ping [text]",
	Short: "Send a PING and wait for the echo",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPing,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List wsgate servers announced over mDNS",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

// loadClientConfig reads the config file and applies explicit flags.
func loadClientConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Client.Host = host
	}
	if f.Changed("port") {
		cfg.Client.Port = port
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if f.Changed("connect-timeout") {
		cfg.Client.ConnectTimeout = connectTimeout
	}
	if f.Changed("timeout") {
		cfg.Client.ResponseTimeout = responseTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}

	path, err := resolveInputPath(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := analysis.Validate(data); err != nil {
		fmt.Println(ui.NewFailureResult("Invalid CSV", err, []string{
			"Separate fields with commas",
			"Start each row with a dd.mm.yyyy hh:mm:ss timestamp",
		}).Render())
		return err
	}

	return exchange(cmd.Context(), cfg, request{
		title:   "Data request",
		command: "wsgate-client send " + args[0],
		params:  map[string]string{"File": path, "Size": strconv.Itoa(len(data)) + " bytes"},
		message: protocol.NewMessage(protocol.OpDataRequest, data),
		label:   "Rows",
	})
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}
	text := "ping"
	if len(args) == 1 {
		text = args[0]
	}

	return exchange(cmd.Context(), cfg, request{
		title:   "Ping",
		command: "wsgate-client ping " + text,
		message: protocol.NewTextMessage(protocol.OpPing, text),
		label:   "Echo",
	})
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = cfg.Client.DiscoverTimeout
	fmt.Printf("Scanning for wsgate servers (timeout: %s)...\n\n", scanner.Timeout)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	services, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(services) == 0 {
		fmt.Println(ui.NewWarningResult("No servers found").
			AddDetail("Service", discovery.ServiceType).
			AddDetail("Waited", scanner.Timeout.String()).Render())
		return nil
	}

	result := ui.NewSuccessResult(fmt.Sprintf("Found %d server(s)", len(services)))
	for _, svc := range services {
		value := svc.Address()
		if v := svc.GetMetadata("version"); v != "" {
			value += "  (" + v + ")"
		}
		result.AddDetail(svc.Instance, value)
	}
	fmt.Println(result.Render())
	return nil
}

// resolveInputPath returns path if it exists as given; otherwise a relative
// path is looked up next to the executable.
func resolveInputPath(path string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return resolveAgainst(path, "")
	}
	return resolveAgainst(path, filepath.Dir(exe))
}

func resolveAgainst(path, exeDir string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("cannot access %s: %w", path, err)
	}

	if !filepath.IsAbs(path) && exeDir != "" {
		candidate := filepath.Join(exeDir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("file not found: %s", path)
}
