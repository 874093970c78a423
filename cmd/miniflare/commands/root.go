// Package commands provides the CLI commands for the worker runtime.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	flagHost     string
	flagPort     int
	flagUpstream string
	flagWatch    bool
	flagLogLevel string
	flagPretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "miniflare [directory]",
	Short: "Miniflare - single-worker serverless runtime emulator",
	Long: `Miniflare emulates the request dispatch contract of a single-worker
serverless runtime. It serves HTTP requests as fetch events, exposes a
/cdn-cgi/mf/scheduled trigger route for timer-driven events, and
forwards unhandled requests to the configured upstream.

Configuration is read from wrangler.toml, miniflare.jsonc and .env in
the given directory (default: the current directory).`,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runServe,
}

func init() {
	rootCmd.Flags().StringVar(&flagHost, "host", "", "Host to listen on")
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Port to listen on")
	rootCmd.Flags().StringVarP(&flagUpstream, "upstream", "u", "", "Upstream origin for unhandled requests")
	rootCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Reload on configuration changes")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty-logs", false, "Human-readable console logs")

	rootCmd.SetVersionTemplate(fmt.Sprintf("miniflare %s (%s)\n", Version, BuildTime))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
