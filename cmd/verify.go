package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <identity-id> <photo>",
	Short: "Verify that a photo shows the claimed identity",
	Long: `Verify that a photo shows the claimed identity (1:1 comparison).

The threshold is VERIFY_THRESHOLD, which defaults to SIMILARITY_THRESHOLD.
The command exits with an error when verification fails.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	claimed := args[0]
	photo, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[1], err)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.pipeline.Verify(cmd.Context(), photo, claimed)
	if mustGetBool(cmd, "json") {
		return outputJSON(res)
	}

	fmt.Printf("Attempt: %s\n", res.AttemptID)
	printMetrics(res.Metrics)
	fmt.Println()
	if res.BestMatch != nil {
		fmt.Printf("Closest identity: %s (score %.4f, threshold %.2f)\n", res.BestMatch.IdentityID, res.BestMatch.Score, res.Threshold)
	}
	if !res.Verified {
		printFailure(res.Failure)
		return fmt.Errorf("%s not verified", claimed)
	}
	fmt.Printf("Verified: %s\n", claimed)
	return nil
}
