package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/majorcontext/facedeploy/internal/container"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs from the Face API container",
	Long: `View logs from the Face API container.

Examples:
  facedeploy logs          # Last 100 lines
  facedeploy logs -n 50    # Last 50 lines
  facedeploy logs -f       # Follow logs (like tail -f)`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "number of lines to show (0 for all)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := container.NewDockerRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	name := settings.API.ContainerName
	log.Debug("displaying logs", "container", name, "follow", logsFollow, "lines", logsLines)

	if logsFollow {
		err = rt.FollowLogs(ctx, name, os.Stdout, logsLines)
	} else {
		var out []byte
		out, err = rt.ContainerLogsTail(ctx, name, logsLines)
		if err == nil {
			os.Stdout.Write(out)
		}
	}
	if errors.Is(err, container.ErrNotFound) {
		return fmt.Errorf("no %s container; run `facedeploy` to deploy it", name)
	}
	return err
}
