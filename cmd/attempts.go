package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database/postgres"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect the identification attempt log (requires DATABASE_URL)",
}

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent attempts",
	Args:  cobra.NoArgs,
	RunE:  runAttemptsList,
}

var attemptsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show attempt counts per status",
	Args:  cobra.NoArgs,
	RunE:  runAttemptsStats,
}

var attemptsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded attempt",
	Args:  cobra.NoArgs,
	RunE:  runAttemptsClear,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
	attemptsCmd.AddCommand(attemptsListCmd, attemptsStatsCmd, attemptsClearCmd)

	attemptsListCmd.Flags().Int("limit", constants.DefaultAttemptListLimit, "Number of attempts to list")
	attemptsListCmd.Flags().Bool("json", false, "Output as JSON")
	attemptsStatsCmd.Flags().Bool("json", false, "Output as JSON")
	attemptsClearCmd.Flags().Bool("yes", false, "Confirm deletion")
}

// withAttemptLog opens the database and runs fn against the attempt repository.
func withAttemptLog(cmd *cobra.Command, fn func(ctx context.Context, repo *postgres.AttemptRepository) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best effort on exit

	pool, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL environment variable is required")
	}
	defer pool.Close()

	return fn(cmd.Context(), postgres.NewAttemptRepository(pool))
}

func runAttemptsList(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	if limit < 1 {
		return errors.New("--limit must be positive")
	}

	return withAttemptLog(cmd, func(ctx context.Context, repo *postgres.AttemptRepository) error {
		attempts, err := repo.ListAttempts(ctx, limit)
		if err != nil {
			return fmt.Errorf("listing attempts: %w", err)
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(map[string]any{"attempts": attempts, "count": len(attempts)})
		}
		if len(attempts) == 0 {
			fmt.Println("No attempts recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tOPERATION\tSTATUS\tIDENTITY\tSIMILARITY\tQUALITY\tTOTAL")
		fmt.Fprintln(w, "----\t---------\t------\t--------\t----------\t-------\t-----")
		for _, a := range attempts {
			identity := a.IdentityID
			if a.ClaimedIdentityID != "" {
				identity = a.ClaimedIdentityID + " (claimed)"
			}
			if identity == "" {
				identity = "-"
			}
			similarity := "-"
			if a.Similarity != nil {
				similarity = fmt.Sprintf("%.4f", *a.Similarity)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\t%.2fs\n",
				a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Operation, a.Status,
				identity, similarity, a.QualityScore, a.TotalSeconds)
		}
		return w.Flush()
	})
}

func runAttemptsStats(cmd *cobra.Command, args []string) error {
	return withAttemptLog(cmd, func(ctx context.Context, repo *postgres.AttemptRepository) error {
		breakdown, err := repo.FailureBreakdown(ctx)
		if err != nil {
			return fmt.Errorf("loading breakdown: %w", err)
		}
		total := 0
		for _, c := range breakdown {
			total += c.Count
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(map[string]any{"statuses": breakdown, "total": total})
		}
		if total == 0 {
			fmt.Println("No attempts recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT\tPERCENT")
		fmt.Fprintln(w, "------\t-----\t-------")
		for _, c := range breakdown {
			fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", c.Status, c.Count, 100*float64(c.Count)/float64(total))
		}
		fmt.Fprintf(w, "total\t%d\t\n", total)
		return w.Flush()
	})
}

func runAttemptsClear(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") {
		return errors.New("refusing to delete attempts without --yes")
	}
	return withAttemptLog(cmd, func(ctx context.Context, repo *postgres.AttemptRepository) error {
		n, err := repo.DeleteAllAttempts(ctx)
		if err != nil {
			return fmt.Errorf("deleting attempts: %w", err)
		}
		fmt.Printf("Deleted %d attempt(s)\n", n)
		return nil
	})
}
