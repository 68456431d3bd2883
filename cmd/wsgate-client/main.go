// Wsgate-client talks to a wsgate server from the command line.
//
// It opens one WebSocket session, sends a single PING or DATA_REQUEST, waits
// for the reply and prints it.
//
// Usage:
//
//	wsgate-client [command] [flags]
//
// See 'wsgate-client --help' for available commands.
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

var rootCmd = &cobra.Command{
	Use:   "wsgate-client",
	Short: "wsgate command line client",
	Long: `A command line client for wsgate servers.

Connects to a server by address, or finds one over mDNS with --discover,
sends one request and prints the reply.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wsgate-client %s\n", version.Full())
	},
}
