//go:build cgo

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a face recognition model locally through ONNX Runtime.
// The model takes a 1x3xSxS RGB tensor scaled to [-1, 1] and returns a 1xD signature.
type ONNXEmbedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	size         int
	dimensions   int
	mu           sync.Mutex
}

// NewONNXEmbedder loads modelPath. libraryPath overrides the onnxruntime shared library location.
func NewONNXEmbedder(modelPath, libraryPath string, size, dimensions int) (*ONNXEmbedder, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ONNX model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected model signature: %d inputs, %d outputs", len(inputs), len(outputs))
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		size:         size,
		dimensions:   dimensions,
	}, nil
}

// Embed returns the raw model output for the face. Normalization is left to the caller.
func (e *ONNXEmbedder) Embed(ctx context.Context, face image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("ONNX embedder is closed")
	}

	fillCHW(e.inputTensor.GetData(), Resize(face, e.size, e.size), e.size)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData())
	return embedding, nil
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}

// fillCHW writes img as planar RGB scaled to [-1, 1].
func fillCHW(dst []float32, img *image.RGBA, size int) {
	plane := size * size
	for y := range size {
		for x := range size {
			i := img.PixOffset(x, y)
			p := y*size + x
			dst[p] = float32(img.Pix[i])/127.5 - 1
			dst[plane+p] = float32(img.Pix[i+1])/127.5 - 1
			dst[2*plane+p] = float32(img.Pix[i+2])/127.5 - 1
		}
	}
}
