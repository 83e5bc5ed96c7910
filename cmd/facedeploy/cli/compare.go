package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/majorcontext/facedeploy/internal/faceapi"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/majorcontext/facedeploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	compareURL       string
	compareThreshold float64
	compareTimeout   time.Duration
)

var compareCmd = &cobra.Command{
	Use:   "compare <image1> <image2>",
	Short: "Compare two face images with the deployed Face API",
	Long: `Send two images to the Face API's /compare-faces endpoint and print
the similarity. A similarity of 80% or more counts as a match.

Examples:
  facedeploy compare alice-1.jpg alice-2.jpg
  facedeploy compare --url http://10.0.0.7:5000 a.png b.png`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVar(&compareURL, "url", "", "Face API base URL (default: the local deployment)")
	compareCmd.Flags().Float64Var(&compareThreshold, "det-prob-threshold", 0, "face detection threshold passed to CompreFace (0 keeps the server default)")
	compareCmd.Flags().DurationVar(&compareTimeout, "timeout", 60*time.Second, "request timeout")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	img1, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	img2, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	url := compareURL
	if url == "" {
		url = settings.LocalURL()
	}
	log.Debug("comparing faces", "url", url, "image1", args[0], "image2", args[1])

	cmp, err := faceapi.NewClient(url, compareTimeout).Compare(ctx, img1, img2, faceapi.CompareOptions{
		DetProbThreshold: compareThreshold,
	})
	if err != nil {
		return err
	}
	printComparison(os.Stdout, cmp)
	return nil
}

func printComparison(w io.Writer, cmp *faceapi.Comparison) {
	verdict := ui.Red("no match")
	if cmp.Match {
		verdict = ui.Green("match")
	}
	fmt.Fprintf(w, "Similarity:  %.2f%%\n", cmp.Similarity)
	fmt.Fprintf(w, "Distance:    %.2f%%\n", cmp.Distance)
	fmt.Fprintf(w, "Result:      %s\n", verdict)
}
