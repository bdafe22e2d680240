package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/readyroom/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┬─┐┌─┐┌─┐┌┬┐┬ ┬┬─┐┌─┐┌─┐┌┬┐
  ├┬┘├┤ ├─┤ ││└┬┘├┬┘│ ││ │││││
  ┴└─└─┘┴ ┴─┴┘ ┴ ┴└─└─┘└─┘┴ ┴
`

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:   "readyroom",
		Short: "Authoritative lobby and session server",
		Long: `readyroom runs a single real-time session.

Clients connect over TCP or WebSocket, pass a handshake and a
ready check, sit through a countdown and then exchange messages
with the server, with a shared chat throughout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		serveCmd(),
		probeCmd(),
		versionCmd(),
	)
	return root
}

// printBanner prints the ASCII art banner.
func printBanner() {
	color.New(color.FgCyan).Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
