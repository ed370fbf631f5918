// Filecloud-server is a TCP request/response server hosting the filecloud
// file-storage protocol.
//
// Clients connect over plain TCP and exchange one text message per turn.
// The process reads administrative commands from standard input while it
// serves clients:
//
//	show users      list logged-in users
//	show sessions   list open client sessions
//	shutdown        stop the server and exit
//
// Usage:
//
//	filecloud-server server [flags]
//
// See 'filecloud-server --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/filecloud/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filecloud-server",
	Short: "Filecloud TCP server",
	Long: `A TCP request/response server for the filecloud file-storage protocol.

Each client connection runs in its own session. Requests and responses
strictly alternate, and a protocol handler decides how to answer each
message. The administrative console on standard input accepts
"show users", "show sessions" and "shutdown".`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (.yaml or .toml; default: user config dir)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("filecloud-server %s\n", version.Full())
	},
}
