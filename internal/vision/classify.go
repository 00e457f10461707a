package vision

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const (
	LabelAI   = "AI-generated"
	LabelReal = "Real"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Model is a loaded detector. Predict returns [prob_ai, prob_real, ...].
type Model interface {
	Predict(ctx context.Context, input *Tensor) ([]float32, error)
	Close() error
}

// Result is the labeled outcome of one detection.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	ProbAI     float32 `json:"prob_ai"`
	ProbReal   float32 `json:"prob_real"`
}

// InferenceError wraps every failure of the forward pass.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// RunInference runs one forward pass and classifies the output.
func RunInference(ctx context.Context, m Model, input *Tensor) (*Result, error) {
	if m == nil {
		return nil, &InferenceError{Err: ErrModelNotLoaded}
	}
	if input == nil || len(input.Data) != input.Len() {
		return nil, &InferenceError{Err: errors.New("malformed input tensor")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{Err: err}
	}

	out, err := m.Predict(ctx, input)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	result, err := Classify(out)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	return result, nil
}

// Classify maps [prob_ai, prob_real] to a result. Ties go to Real.
func Classify(out []float32) (*Result, error) {
	if len(out) < 2 {
		return nil, fmt.Errorf("model output has %d values, want 2", len(out))
	}
	probAI, probReal := out[0], out[1]
	if isNaN(probAI) || isNaN(probReal) {
		return nil, errors.New("model output is NaN")
	}

	label := LabelReal
	if probAI > probReal {
		label = LabelAI
	}
	best := math.Max(float64(probAI), float64(probReal))

	return &Result{
		Label:      label,
		Confidence: confidencePercent(best),
		ProbAI:     probAI,
		ProbReal:   probReal,
	}, nil
}

func confidencePercent(p float64) float64 {
	c := math.Round(p*100*100) / 100
	return math.Min(100, math.Max(0, c))
}

func isNaN(v float32) bool {
	return math.IsNaN(float64(v))
}
