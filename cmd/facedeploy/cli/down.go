package cli

import (
	"errors"

	"github.com/majorcontext/facedeploy/internal/container"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/majorcontext/facedeploy/internal/ui"
	"github.com/spf13/cobra"
)

var downCompreface bool

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the Face API container",
	Long: `Stop and remove the Face API container. The configuration record and
the CompreFace checkout are kept, so running facedeploy again redeploys.

With --compreface the CompreFace stack is stopped as well.`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
	downCmd.Flags().BoolVar(&downCompreface, "compreface", false, "also stop the CompreFace stack")
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := container.NewDockerRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	name := settings.API.ContainerName
	state, err := rt.ContainerState(ctx, name)
	switch {
	case errors.Is(err, container.ErrNotFound):
		ui.Info("No " + name + " container is running.")
	case err != nil:
		return err
	default:
		log.Info("removing container", "name", name, "state", state)
		if err := rt.StopContainer(ctx, name); err != nil {
			return err
		}
		if err := rt.RemoveContainer(ctx, name); err != nil {
			return err
		}
		ui.Done("Removed " + name)
	}

	if downCompreface {
		return composeFor(settings).Down(ctx)
	}
	return nil
}
