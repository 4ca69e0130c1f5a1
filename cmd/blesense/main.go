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

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blesense",
		Short: "BLE sensor peripheral",
		Long: `BLE sensor peripheral that publishes device readings as GATT characteristics:

- Battery level and temperature, sampled periodically
- Button state, toggled on every press and mirrored on LED1
- Motion state, debounced from accelerometer interrupts
- Device configuration (id and endpoint), provisioned once and read back by gateways

The radio stays off until the device has been provisioned.`,
		Version:       formatVersion(version),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetVersionTemplate(fmt.Sprintf("blesense {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolP("verbose", "V", false, "Shortcut for --log-level debug")
	root.PersistentFlags().StringP("settings", "c", "", "Settings file (YAML)")
	root.PersistentFlags().String("store", "", "Config store (dir, sqlite, memory)")
	root.PersistentFlags().String("store-path", "", "Config store directory or database file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newProvisionCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTableCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
