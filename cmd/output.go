package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/face-id/internal/failure"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// printFailure prints the reason and advice of a failed attempt.
func printFailure(r *failure.Report) {
	if r == nil {
		return
	}
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Reason: %s\n", r.Reason)
	if r.Advice != "" {
		fmt.Printf("Advice: %s\n", r.Advice)
	}
}

// printMetrics prints the per-stage summary of one extraction.
func printMetrics(m pipeline.Metrics) {
	if !m.FaceDetected {
		fmt.Printf("Face: not detected (%.2fs)\n", m.TotalSeconds)
		return
	}
	fmt.Printf("Face: confidence %.2f, quality %.3f", m.FaceConfidence, m.QualityScore)
	if m.QualityAfter != nil {
		fmt.Printf(" -> %.3f", *m.QualityAfter)
	}
	fmt.Println()
	if len(m.Enhancement) > 0 {
		stages := make([]string, len(m.Enhancement))
		for i, o := range m.Enhancement {
			stages[i] = o.String()
		}
		fmt.Printf("Enhancement: %s\n", strings.Join(stages, "; "))
	}
	fmt.Printf("Timing: detect %.3fs, enhance %.3fs, embed %.3fs, search %.3fs, total %.3fs\n",
		m.DetectionSeconds, m.EnhancementSeconds, m.EmbeddingSeconds, m.SearchSeconds, m.TotalSeconds)
}
