package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <photo>",
	Short: "Identify the face in a photo against the gallery",
	Long: `Identify the face in a photo against the enrolled gallery.

The photo is processed like an enrollment photo and its signature is
searched in the gallery. Matches at or above the threshold are listed,
best first.

Examples:
  face-id identify query.jpg
  face-id identify query.jpg --top-k 10 --threshold 0.5
  face-id identify query.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Int("top-k", 0, "Number of ranked matches to return (0 = configured TOP_K)")
	identifyCmd.Flags().Float64("threshold", constants.DefaultSimilarityThreshold, "Minimum similarity for a match (overrides SIMILARITY_THRESHOLD)")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	topK := mustGetInt(cmd, "top-k")
	if topK < 0 || topK > constants.MaxTopK {
		return fmt.Errorf("--top-k must be between 0 and %d", constants.MaxTopK)
	}

	photo, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	threshold := mustGetFloat64(cmd, "threshold")
	if !cmd.Flags().Changed("threshold") {
		threshold = a.cfg.Recognition.Threshold
	}

	res := a.pipeline.Identify(cmd.Context(), photo, topK, threshold)
	if jsonOutput {
		return outputJSON(res)
	}
	printIdentifyResult(res)
	return nil
}

func printIdentifyResult(res *pipeline.IdentifyResult) {
	fmt.Printf("Attempt: %s\n", res.AttemptID)
	printMetrics(res.Metrics)

	if !res.Success {
		fmt.Println()
		printFailure(res.Failure)
		return
	}

	fmt.Printf("\nMatches (threshold %.2f):\n", res.Threshold)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tIDENTITY\tSCORE\tNAME")
	fmt.Fprintln(w, "----\t--------\t-----\t----")
	for i, m := range res.Matches {
		name, _ := m.Metadata["name"].Str()
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\n", i+1, m.IdentityID, m.Score, name)
	}
	w.Flush()
}
