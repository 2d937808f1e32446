package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-id/internal/facematch"
)

const (
	defaultVisionURL = "http://localhost:8000"

	// overlapIoU merges detector boxes that describe the same face.
	overlapIoU = 0.5
)

// Client talks to the vision provider server. It implements Detector, Embedder,
// Restorer and SuperResolver.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new provider client. A zero timeout leaves requests bounded
// only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultVisionURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// faceDetection represents a single face returned by /detect
type faceDetection struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

// detectResponse represents the response from the detection endpoint
type detectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
}

// embeddingResponse represents the response from the embedding endpoint
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Ping checks that the provider server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vision server unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision server unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// Detect locates faces in img. Overlapping boxes are merged, most confident first.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, "/detect", nil, data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	bboxes := make([][]float64, 0, len(resp.Faces))
	scores := make([]float64, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		bboxes = append(bboxes, f.BBox)
		scores = append(scores, f.DetScore)
	}

	detections := make([]Detection, 0, len(bboxes))
	for _, i := range facematch.SuppressOverlaps(bboxes, scores, overlapIoU) {
		r := facematch.PixelBBoxToRect(bboxes[i], img.Bounds())
		if r.Empty() {
			continue
		}
		detections = append(detections, Detection{BBox: r, Confidence: scores[i]})
	}
	return detections, nil
}

// Embed computes the raw signature of an aligned face crop.
func (c *Client) Embed(ctx context.Context, face image.Image) ([]float32, error) {
	data, err := EncodePNG(face)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, "/embed/face", nil, data)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return embResp.Embedding, nil
}

// Restore asks the server to restore a face crop, blended by weight.
func (c *Client) Restore(ctx context.Context, face image.Image, weight float64) (image.Image, error) {
	params := url.Values{"weight": {strconv.FormatFloat(weight, 'f', -1, 64)}}
	return c.transform(ctx, "/restore", params, face)
}

// Upscale asks the server to super-resolve a face crop by scale.
func (c *Client) Upscale(ctx context.Context, face image.Image, scale int) (image.Image, error) {
	params := url.Values{"scale": {strconv.Itoa(scale)}}
	return c.transform(ctx, "/upscale", params, face)
}

// transform posts an image to an image-to-image endpoint and decodes the returned image.
func (c *Client) transform(ctx context.Context, endpoint string, params url.Values, img image.Image) (image.Image, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	body, err := c.postMultipartImage(ctx, endpoint, params, data)
	if err != nil {
		return nil, err
	}
	out, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s returned an unusable image: %w", endpoint, err)
	}
	return out, nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
// The part carries an explicit Content-Type header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, params url.Values, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.png"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}
