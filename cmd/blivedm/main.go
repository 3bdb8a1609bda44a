package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xyself/blivedm/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configDir string
	logLevel  string
	noColor   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		errors.PrintError(errors.Classify(err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "blivedm",
		Short: "Live chat client for bilibili rooms",
		Long: `blivedm connects to the chat servers of one or more live rooms
and logs danmaku, gifts, guard purchases, super chats and other
notifications as they arrive.

Raw notifications can be archived to SQLite or S3, and a small HTTP
server exposes Prometheus metrics and per-room session health.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				errors.DisableColors()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configDir, "config-dir", ".", "Directory holding blivedm.json and .env")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&g.noColor, "no-color", false, "Disable colored error output")

	root.AddCommand(
		watchCmd(g),
		openLiveCmd(g),
		historyCmd(g),
		versionCmd(),
	)
	return root
}

// info prints a status line for the operator.
func info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}
