package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity-id> <photo>...",
	Short: "Enroll an identity from one or more photos",
	Long: `Enroll an identity from one or more photos.

Each photo is processed independently; photos without a usable face are
skipped. The surviving signatures are averaged into one gallery entry.

Examples:
  # Enroll from three photos
  face-id enroll jan-novak a.jpg b.jpg c.jpg --attr name="Jan Novák" --attr employee_id=1042

  # Re-enroll an existing identity
  face-id enroll jan-novak new.jpg --replace

  # Attributes as a JSON object
  face-id enroll jan-novak a.jpg --attributes '{"name":"Jan Novák","active":true}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().StringSlice("attr", nil, "Attribute as key=value (numbers and booleans are detected), repeatable")
	enrollCmd.Flags().String("attributes", "", "Attributes as a JSON object")
	enrollCmd.Flags().Bool("replace", false, "Replace the identity if it is already enrolled")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	metadata, err := parseEnrollAttributes(mustGetString(cmd, "attributes"), mustGetStringSlice(cmd, "attr"))
	if err != nil {
		return err
	}

	photos, err := readPhotos(args[1:])
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.pipeline.Enroll(cmd.Context(), pipeline.EnrollRequest{
		IdentityID: args[0],
		Photos:     photos,
		Metadata:   metadata,
		Replace:    mustGetBool(cmd, "replace"),
	})
	if res.Success {
		if err := a.persist(); err != nil {
			return fmt.Errorf("saving gallery: %w", err)
		}
	}

	if jsonOutput {
		return outputJSON(res)
	}

	for _, p := range res.Photos {
		status := "used"
		if !p.Used {
			status = "skipped: " + p.Reason
		}
		fmt.Printf("  %s: %s\n", args[1+p.Index], status)
	}
	if !res.Success {
		return fmt.Errorf("enrollment of %s failed: %s", res.IdentityID, res.FailureReason)
	}
	fmt.Printf("Enrolled %s at position %d from %d of %d photo(s)", res.IdentityID, res.Position, res.SignatureCountUsed, len(photos))
	if res.Replaced > 0 {
		fmt.Printf(", replaced %d entr%s", res.Replaced, plural(res.Replaced, "y", "ies"))
	}
	fmt.Println()
	return nil
}

func readPhotos(paths []string) ([][]byte, error) {
	photos := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // paths come from the command line
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		photos = append(photos, data)
	}
	return photos, nil
}

// parseEnrollAttributes merges the JSON object with key=value pairs (pairs win).
func parseEnrollAttributes(raw string, pairs []string) (database.Metadata, error) {
	md := database.Metadata{}
	if raw != "" {
		var attrs map[string]any
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("--attributes must be a JSON object: %w", err)
		}
		parsed, err := database.MetadataFromAny(attrs)
		if err != nil {
			return nil, err
		}
		md = parsed
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --attr %q, expected key=value", pair)
		}
		md[key] = parseAttrValue(value)
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

func parseAttrValue(s string) database.Value {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return database.Bool(b)
	}
	// ParseFloat accepts "NaN" and "Inf"; those stay text.
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return database.Number(n)
	}
	return database.String(s)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
