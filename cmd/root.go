// Package cmd defines the domcapture command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/domcapture/internal/config"
)

// newRootCmd creates the root command. v receives every flag binding so that
// flag > env > file > default.
func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domcapture",
		Short: "Capture rendered screenshots for a batch of URLs.",
		Long: `domcapture renders each input URL in a headless browser, saves a
screenshot and writes CSV and HTML reports for the run. Hosts that fail a
quick liveness probe are reported without launching a browser.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "config file (yaml, toml or json)")
	cmd.AddCommand(newCaptureCmd(v))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd(config.New())
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "domcapture: %v\n", err)
		return 1
	}
	return 0
}
