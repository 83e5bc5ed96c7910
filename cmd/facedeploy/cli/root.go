// Package cli implements the facedeploy command-line interface using Cobra.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/majorcontext/facedeploy/internal/config"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	jsonOut bool

	// settings is loaded once in PersistentPreRunE and shared by every command.
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "facedeploy",
	Short: "Deploy the Face API wrapper in front of CompreFace",
	Long: `facedeploy provisions a face comparison API backed by CompreFace.

Run without a subcommand to deploy: it asks for the CompreFace API key and
URL (or reads COMPRE_FACE_API_KEY and COMPRE_FACE_URL), checks that CompreFace
answers, writes the configuration record, builds the Face API image, starts
the container, and waits until it is healthy.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		settings = cfg

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      cfg.DebugDir(),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			// Log init failure is non-fatal; the default logger stays in place.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	RunE: runDeploy,
}

// closeLog flushes the debug log once the command returns.
var closeLog = log.Close

// Execute runs the root command. The debug log is closed on every path;
// cobra skips post-run hooks when a command fails.
func Execute() error {
	defer closeLog()
	return rootCmd.Execute()
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "write log records to stderr as JSON")
}
