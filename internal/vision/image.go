package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"golang.org/x/image/draw"
)

// ErrInvalidImage is returned for input that cannot be decoded into a non-empty image.
var ErrInvalidImage = errors.New("invalid image")

// Decode decodes JPEG, PNG, GIF, BMP or WebP data.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-size image", ErrInvalidImage)
	}
	return img, nil
}

// EncodePNG encodes img losslessly for transfer to a provider.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Locate returns the most confident detection.
func Locate(detections []Detection) (Detection, bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

// Crop copies the r region of img into a new RGBA image with origin (0,0).
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Resize scales img to exactly width×height. Uses Catmull-Rom when enlarging
// and bilinear when shrinking.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	b := img.Bounds()
	if width > b.Dx() || height > b.Dy() {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	}
	return dst
}

// MinSide returns the smaller of the image's width and height.
func MinSide(img image.Image) int {
	b := img.Bounds()
	return min(b.Dx(), b.Dy())
}

// ValidateFace checks img is usable as an aligned face of size×size pixels.
func ValidateFace(img image.Image, size int) error {
	if img == nil {
		return errors.New("image is nil")
	}
	b := img.Bounds()
	if b.Empty() {
		return errors.New("image is empty")
	}
	if b.Dx() != size || b.Dy() != size {
		return fmt.Errorf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), size, size)
	}
	return nil
}

// Grayscale converts the r region of img to a 2D array of grayscale values (0-255),
// indexed [x][y] relative to r.Min.
func Grayscale(img image.Image, r image.Rectangle) [][]float64 {
	r = r.Intersect(img.Bounds())
	width := r.Dx()
	height := r.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			cr, cg, cb, _ := img.At(r.Min.X+x, r.Min.Y+y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(cr>>8) + 0.587*float64(cg>>8) + 0.114*float64(cb>>8)
		}
	}
	return gray
}
