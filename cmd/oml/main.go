// Command oml is the oh-my-linear gateway: a unified MCP server that answers
// Linear reads from the local Linear.app cache and proxies everything else to
// the official Linear MCP server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verboseFlag bool
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "oml",
	Short: "oml - unified Linear MCP gateway",
	Long: `A read-through gateway for Linear's MCP tools. Reads are served from the
local Linear.app IndexedDB cache in milliseconds; writes and cache misses are
proxied to the official Linear MCP server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verboseFlag {
			level = slog.LevelDebug
		}
		// stdout carries the MCP protocol; all logging goes to stderr.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(reauthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
