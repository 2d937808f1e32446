package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/database/postgres"
	"github.com/kozaktomas/face-id/internal/facematch"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and maintain the enrolled gallery",
}

var galleryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show gallery statistics and consistency",
	Args:  cobra.NoArgs,
	RunE:  runGalleryStats,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery entries",
	Long: `List gallery entries in position order.

--name filters on the "name" attribute (and identity id), ignoring case
and diacritics, so "jan novak" finds "Jan Novák".`,
	Args: cobra.NoArgs,
	RunE: runGalleryList,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <identity-id>",
	Short: "Remove every entry of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryRemove,
}

var galleryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the gallery from the PostgreSQL signature archive",
	Long: `Rebuild the gallery from scratch using the signatures archived in PostgreSQL.

Requires DATABASE_URL. The current gallery files are replaced only after
every archived signature has been loaded.`,
	Args: cobra.NoArgs,
	RunE: runGalleryRebuild,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryStatsCmd, galleryListCmd, galleryRemoveCmd, galleryRebuildCmd)

	galleryStatsCmd.Flags().Bool("json", false, "Output as JSON")

	galleryListCmd.Flags().String("name", "", "Filter by name (case and diacritic insensitive)")
	galleryListCmd.Flags().Int("limit", 0, "Limit number of entries (0 = no limit)")
	galleryListCmd.Flags().Bool("json", false, "Output as JSON")

	galleryRebuildCmd.Flags().Bool("dry-run", false, "Load and validate the archive without writing the gallery")
}

func runGalleryStats(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	index, err := openGallery(cfg)
	if err != nil {
		return err
	}
	stats := index.Statistics()

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"gallery":    stats,
			"consistent": stats.Consistent(),
		})
	}

	fmt.Printf("Gallery:     %s, %s\n", cfg.Gallery.VectorPath, cfg.Gallery.MetadataPath)
	fmt.Printf("Entries:     %d\n", stats.TotalEntries)
	fmt.Printf("Identities:  %d\n", stats.Identities)
	fmt.Printf("Dimension:   %d\n", stats.Dimension)
	fmt.Printf("Metric:      %s\n", stats.Metric)
	fmt.Printf("Backend:     %s\n", stats.Backend)
	if !stats.Consistent() {
		return fmt.Errorf("%w: %d vectors, %d metadata records", database.ErrIndexIntegrity, stats.TotalEntries, stats.MetadataEntries)
	}
	fmt.Println("Consistent:  yes")
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	index, err := openGallery(cfg)
	if err != nil {
		return err
	}

	entries := facematch.FilterByName(index.Entries(), mustGetString(cmd, "name"))
	if limit := mustGetInt(cmd, "limit"); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if mustGetBool(cmd, "json") {
		if entries == nil {
			entries = []database.Entry{}
		}
		return outputJSON(map[string]any{"entries": entries, "count": len(entries)})
	}

	if len(entries) == 0 {
		fmt.Println("No entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tIDENTITY\tATTRIBUTES")
	fmt.Fprintln(w, "--------\t--------\t----------")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.Position, e.IdentityID, formatMetadata(e.Metadata))
	}
	w.Flush()
	fmt.Printf("\n%d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
	return nil
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.pipeline.RemoveIdentity(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("identity %s is not enrolled", args[0])
	}
	if err := a.persist(); err != nil {
		return fmt.Errorf("saving gallery: %w", err)
	}
	fmt.Printf("Removed %d entr%s of %s\n", removed, plural(removed, "y", "ies"), args[0])
	return nil
}

func runGalleryRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best effort on exit

	pool, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL environment variable is required")
	}
	defer pool.Close()

	index, err := openGallery(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Loading signatures from PostgreSQL...\n")
	archive := postgres.NewSignatureRepository(pool)
	sigs, err := archive.ListSignatures(ctx)
	if err != nil {
		return fmt.Errorf("listing signatures: %w", err)
	}

	bar := progressbar.NewOptions(len(sigs),
		progressbar.OptionSetDescription("Rebuilding gallery"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("identities"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	entries := make([]database.Entry, 0, len(sigs))
	var skipped []string
	for _, s := range sigs {
		if len(s.Signature) != index.Dimension() {
			skipped = append(skipped, fmt.Sprintf("%s (dimension %d)", s.IdentityID, len(s.Signature)))
			bar.Add(1) //nolint:errcheck // progress display only
			continue
		}
		entries = append(entries, database.Entry{
			IdentityID: s.IdentityID,
			Signature:  s.Signature,
			Metadata:   s.Metadata,
		})
		bar.Add(1) //nolint:errcheck // progress display only
	}
	bar.Finish() //nolint:errcheck // progress display only
	fmt.Println()

	if len(skipped) > 0 {
		sort.Strings(skipped)
		fmt.Printf("Skipped %d signature(s) with the wrong dimension: %s\n", len(skipped), strings.Join(skipped, ", "))
	}

	before := index.Statistics().TotalEntries
	if err := index.Replace(entries); err != nil {
		return fmt.Errorf("rebuilding gallery: %w", err)
	}

	if mustGetBool(cmd, "dry-run") {
		fmt.Printf("Dry run: would replace %d entries with %d\n", before, len(entries))
		return nil
	}
	if err := index.Save(cfg.Gallery.VectorPath, cfg.Gallery.MetadataPath); err != nil {
		return fmt.Errorf("saving gallery: %w", err)
	}
	fmt.Printf("Gallery rebuilt: %d entries (was %d)\n", len(entries), before)
	return nil
}

// formatMetadata renders attributes as sorted key=value pairs.
func formatMetadata(md database.Metadata) string {
	if len(md) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + md[k].Text()
	}
	return strings.Join(parts, " ")
}
