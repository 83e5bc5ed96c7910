package cli

import (
	"os"

	"github.com/majorcontext/facedeploy/internal/bootstrap"
	"github.com/majorcontext/facedeploy/internal/config"
	"github.com/majorcontext/facedeploy/internal/container"
	"github.com/majorcontext/facedeploy/internal/ui"
	"github.com/spf13/cobra"
)

var compreFaceCmd = &cobra.Command{
	Use:   "compreface",
	Short: "Manage the local CompreFace stack",
	Long: `Manage a local CompreFace stack with docker compose.

The stack lives in ~/.facedeploy/compreface (a checkout of the CompreFace
release named by compreface.version) and is configured by its .env file,
which is written once with CompreFace's defaults and never overwritten.`,
}

var compreFaceUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Clone CompreFace if needed and start it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		res, err := bootstrap.New(settings, os.Stderr).Ensure(ctx)
		if err != nil {
			return err
		}
		if res.Cloned {
			ui.Done("Cloned CompreFace " + settings.CompreFace.Version + " into " + res.ComprefaceDir)
		}
		if err := composeFor(settings).Up(ctx); err != nil {
			return err
		}
		ui.Done("CompreFace is starting; the UI is at http://localhost:8000 once it is up")
		return nil
	},
}

var compreFaceDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the CompreFace stack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		return composeFor(settings).Down(ctx)
	},
}

func composeFor(cfg *config.Settings) *container.Compose {
	return &container.Compose{
		Dir:    cfg.ComprefaceDir(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func init() {
	rootCmd.AddCommand(compreFaceCmd)
	compreFaceCmd.AddCommand(compreFaceUpCmd, compreFaceDownCmd)
}
