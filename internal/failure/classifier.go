// Package failure maps unsuccessful pipeline attempts to a status with a human-readable
// reason and actionable advice.
package failure

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/kozaktomas/face-id/internal/database"
	"gopkg.in/yaml.v3"
)

//go:embed reasons.yaml
var reasonsYAML []byte

// Status is a failure category.
type Status string

const (
	StatusInvalidImage    Status = "invalid_image"
	StatusNoFace          Status = "no_face"
	StatusFaceTooSmall    Status = "face_too_small"
	StatusEmbeddingFailed Status = "embedding_failed"
	StatusLowSimilarity   Status = "low_similarity"
	StatusUnknown         Status = "unknown"
)

// degenerateKey selects the reason text for a near-zero embedding norm.
// It reports StatusEmbeddingFailed.
const degenerateKey = "degenerate_embedding"

// Attempt is what the pipeline knows about an attempt when it did not produce a match.
type Attempt struct {
	ImageInvalid bool
	FaceDetected bool
	FaceWidth    int
	FaceHeight   int
	Embedding    []float32 // nil when extraction returned nothing
	Similarity   *float64  // best gallery similarity, nil when no search ran
	Threshold    float64
}

// Report is a classified failure.
type Report struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
	Advice string `json:"advice"`
}

type reasonEntry struct {
	Reason string `yaml:"reason"`
	Advice string `yaml:"advice"`
}

type reasonsFile struct {
	Statuses map[string]reasonEntry `yaml:"statuses"`
}

type message struct {
	reason *template.Template
	advice string
}

// templateData is the view of an attempt available to reason templates.
type templateData struct {
	FaceWidth     int
	FaceHeight    int
	EmbeddingNorm float64
	Similarity    float64
	Threshold     float64
}

// Classifier applies the ordered failure rules.
type Classifier struct {
	minFaceSize int
	normEpsilon float64
	messages    map[string]message
}

// NewClassifier builds a classifier using the embedded reason table.
func NewClassifier(minFaceSize int, normEpsilon float64) *Classifier {
	messages, err := parseReasons(reasonsYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to load embedded reasons.yaml: " + err.Error())
	}
	return &Classifier{
		minFaceSize: minFaceSize,
		normEpsilon: normEpsilon,
		messages:    messages,
	}
}

func parseReasons(data []byte) (map[string]message, error) {
	var f reasonsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}

	required := []string{
		string(StatusInvalidImage), string(StatusNoFace), string(StatusFaceTooSmall),
		string(StatusEmbeddingFailed), degenerateKey, string(StatusLowSimilarity), string(StatusUnknown),
	}
	messages := make(map[string]message, len(f.Statuses))
	for _, key := range required {
		entry, ok := f.Statuses[key]
		if !ok {
			return nil, fmt.Errorf("missing reason for %q", key)
		}
		tmpl, err := template.New(key).Option("missingkey=error").Parse(entry.Reason)
		if err != nil {
			return nil, fmt.Errorf("parse reason for %q: %w", key, err)
		}
		messages[key] = message{reason: tmpl, advice: entry.Advice}
	}
	return messages, nil
}

// Classify returns the report of the first matching rule:
// unreadable image, no face, face too small, no embedding, degenerate embedding,
// similarity below threshold, and finally unknown.
func (c *Classifier) Classify(a Attempt) Report {
	data := templateData{
		FaceWidth:  a.FaceWidth,
		FaceHeight: a.FaceHeight,
		Threshold:  a.Threshold,
	}

	switch {
	case a.ImageInvalid:
		return c.report(StatusInvalidImage, string(StatusInvalidImage), data)
	case !a.FaceDetected:
		return c.report(StatusNoFace, string(StatusNoFace), data)
	case a.FaceWidth < c.minFaceSize || a.FaceHeight < c.minFaceSize:
		return c.report(StatusFaceTooSmall, string(StatusFaceTooSmall), data)
	case a.Embedding == nil:
		return c.report(StatusEmbeddingFailed, string(StatusEmbeddingFailed), data)
	}

	if norm := database.L2Norm(a.Embedding); norm < c.normEpsilon {
		data.EmbeddingNorm = norm
		return c.report(StatusEmbeddingFailed, degenerateKey, data)
	}

	if a.Similarity != nil && *a.Similarity < a.Threshold {
		data.Similarity = *a.Similarity
		return c.report(StatusLowSimilarity, string(StatusLowSimilarity), data)
	}

	return c.report(StatusUnknown, string(StatusUnknown), data)
}

// Describe returns the fixed reason and advice for a status without attempt details.
func (c *Classifier) Describe(status Status) Report {
	return c.report(status, string(status), templateData{})
}

func (c *Classifier) report(status Status, key string, data templateData) Report {
	msg, ok := c.messages[key]
	if !ok {
		msg = c.messages[string(StatusUnknown)]
	}
	var buf bytes.Buffer
	if err := msg.reason.Execute(&buf, data); err != nil {
		return Report{Status: status, Reason: string(status), Advice: msg.advice}
	}
	return Report{Status: status, Reason: buf.String(), Advice: msg.advice}
}
