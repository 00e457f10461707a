package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXModel runs the detector through ONNX Runtime. The session binds its
// input and output tensors once, so runs are serialized.
type ONNXModel struct {
	mu sync.Mutex

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	nchw    bool
}

// NewONNXModel loads the model at modelPath. libPath overrides the location of
// the ONNX Runtime shared library when non-empty.
func NewONNXModel(modelPath, libPath string) (*ONNXModel, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx init environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("onnx model has no inputs or outputs")
	}

	inDims := fixedShape(inputs[0].Dimensions)
	nchw, err := inputLayout(inDims)
	if err != nil {
		return nil, err
	}
	outDims := fixedShape(outputs[0].Dimensions)
	if outDims.FlattenedSize() < 2 {
		return nil, fmt.Errorf("onnx output shape %v has fewer than 2 values", outDims)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inDims)
	if err != nil {
		return nil, fmt.Errorf("onnx new input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outDims)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		outputTensor.Destroy()
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnx new session: %w", err)
	}

	return &ONNXModel{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		nchw:    nchw,
	}, nil
}

// fixedShape pins dynamic dimensions (batch) to 1.
func fixedShape(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// inputLayout accepts [1,224,224,3] and the channels-first [1,3,224,224] export.
func inputLayout(dims ort.Shape) (bool, error) {
	if len(dims) == 4 && dims[0] == 1 {
		switch {
		case dims[1] == ImageSize && dims[2] == ImageSize && dims[3] == Channels:
			return false, nil
		case dims[1] == Channels && dims[2] == ImageSize && dims[3] == ImageSize:
			return true, nil
		}
	}
	return false, fmt.Errorf("onnx input shape %v, want [1 %d %d %d]", dims, ImageSize, ImageSize, Channels)
}

func (m *ONNXModel) Predict(ctx context.Context, input *Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, ErrModelNotLoaded
	}
	dst := m.input.GetData()
	if len(dst) != len(input.Data) {
		return nil, fmt.Errorf("input tensor size %d != preprocessed %d", len(dst), len(input.Data))
	}
	if m.nchw {
		toNCHW(dst, input.Data)
	} else {
		copy(dst, input.Data)
	}

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := m.output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	return out, nil
}

func toNCHW(dst, src []float32) {
	const plane = ImageSize * ImageSize
	for i := 0; i < plane; i++ {
		for c := 0; c < Channels; c++ {
			dst[c*plane+i] = src[i*Channels+c]
		}
	}
}

func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closeErr error
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			closeErr = err
		}
		m.session = nil
	}
	if m.input != nil {
		if err := m.input.Destroy(); err != nil {
			closeErr = err
		}
		m.input = nil
	}
	if m.output != nil {
		if err := m.output.Destroy(); err != nil {
			closeErr = err
		}
		m.output = nil
	}
	return closeErr
}

// ShutdownRuntime releases the process-wide ONNX Runtime environment.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
