// Wsgate-server accepts WebSocket sessions and answers PING and DATA_REQUEST
// messages.
//
// Inbound messages are dispatched on a fixed tick (50ms by default), and every
// open session receives a SERVER_STATUS line at a configurable multiple of
// that tick.
//
// Usage:
//
//	wsgate-server serve [flags]
//
// See 'wsgate-server serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wsgate/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wsgate-server",
	Short: "wsgate WebSocket server",
	Long: `A WebSocket server speaking the wsgate opcode protocol.

Every message starts with a one byte opcode: '0' PING (echoed back),
'1' DATA_REQUEST (a CSV payload, answered with '2' DATA_RESPONSE) and
'3' SERVER_STATUS (broadcast by the server).

Use the separate 'wsgate-client' utility to talk to a running server.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: OS config dir/wsgate/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wsgate-server %s\n", version.Full())
	},
}
