package cli

import (
	"io"
	"os"

	"github.com/majorcontext/facedeploy/internal/bootstrap"
	"github.com/majorcontext/facedeploy/internal/config"
	"github.com/majorcontext/facedeploy/internal/container"
	"github.com/majorcontext/facedeploy/internal/deploy"
	"github.com/majorcontext/facedeploy/internal/id"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/majorcontext/facedeploy/internal/preflight"
	"github.com/majorcontext/facedeploy/internal/prompt"
	"github.com/majorcontext/facedeploy/internal/ui"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build and start the Face API (same as running facedeploy with no command)",
	Long: `Build and start the Face API.

The CompreFace API key and URL are taken from COMPRE_FACE_API_KEY and
COMPRE_FACE_URL when set, otherwise you are asked for them. The URL must
look like scheme://host[:port], for example http://localhost:8000.

If CompreFace does not answer you can still continue; the Face API will
start but comparisons fail until CompreFace is up.`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

var deployNoCache bool

func init() {
	rootCmd.AddCommand(deployCmd)
	for _, c := range []*cobra.Command{rootCmd, deployCmd} {
		c.Flags().BoolVar(&deployNoCache, "no-cache", false, "rebuild the Face API image without the layer cache")
	}
}

// credentialSource answers from settings first and falls back to the terminal.
func credentialSource(cfg *config.Settings, term prompt.Source) prompt.Source {
	return prompt.Chain{
		prompt.Static{
			preflight.KeyAPIKey:  cfg.APIKey,
			preflight.KeyBaseURL: cfg.BaseURL,
		},
		term,
	}
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	deployID := id.Generate("deploy")
	log.SetDeployID(deployID)
	log.Info("deploy starting", "home", settings.Home, "image", settings.API.Image)

	rt, err := container.NewDockerRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	var progress io.Writer
	if verbose {
		progress = os.Stdout
	}

	d := &deploy.Deployer{
		Settings:  settings,
		Bootstrap: bootstrap.New(settings, progress),
		Source:    credentialSource(settings, prompt.NewTerminal(preflight.Questions)),
		Prober:    preflight.NewHTTPProber(settings.Probe.Timeout),
		Runtime:   rt,
		BuildOut:  progress,
		NoCache:   deployNoCache,
	}
	if _, err := d.Run(ctx); err != nil {
		log.Error("deploy failed", "error", err)
		ui.Failed("Deployment failed; details in " + settings.DebugDir())
		return err
	}
	return nil
}
