package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the thermolisten command. There are no subcommands: the
// root command runs the listener.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thermolisten",
		Short: "Forward ATC thermometer readings to statsd",
		Long: `Listen for Bluetooth Low Energy advertisements from thermometers running
the ATC custom firmware (Xiaomi LYWSD03MMC and compatibles), decode the
temperature, humidity and battery level they broadcast, and send them as
gauges to a statsd agent.

The scanner is restarted every --interval to work around adapters that
silently stop reporting advertisements. Optionally the readings are also
exposed for Prometheus and published to an MQTT broker, see --config.

--services takes a comma-separated list or may be repeated:
  thermolisten --services 181a,fe95
  thermolisten --services 181a --services fe95
A space-separated list (--services 181a fe95) is rejected as extra arguments.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runListen,
	}

	flags := cmd.Flags()
	flags.Bool("macos-use-bdaddr", false, "Use hardware addresses instead of CoreBluetooth peripheral UUIDs (macOS)")
	flags.StringSlice("services", nil, "Only handle advertisements mentioning these service UUIDs; repeat the flag or comma-separate (--services 181a,fe95), space-separated lists are not accepted")
	flags.BoolP("debug", "d", false, "Enable debug logging")
	flags.String("log-level", "", "Log level (debug, info, warn, error); overrides --debug")
	flags.String("config", "", "Path to a YAML configuration file")
	flags.Duration("interval", 0, "Scanner restart interval (default 60s)")

	// Add -v as a short flag for --version
	flags.BoolP("version", "v", false, "Show version information")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
