// Package presenter turns controller state into what the page paints.
// Everything here is a pure function of its inputs.
package presenter

import (
	"strconv"

	"ai-image-detector/internal/vision"
)

const (
	StatusModelLoading  = "Loading AI model... (first run: ~10s)"
	StatusModelLoaded   = "Model loaded! Ready to upload images"
	StatusFileAccepted  = "Image uploaded! Click 'Run AI Detection'"
	StatusFileRejected  = "Error: Only JPG/PNG images are supported"
	StatusProcessing    = "Processing image..."
	StatusAnalyzing     = "Analyzing image for AI generation..."
	StatusComplete      = "Detection complete!"
	loadErrorPrefix     = "Error loading model: "
	detectErrorPrefix   = "Detection error: "
	ClassAIGenerated    = "ai-generated"
	ClassReal           = "real"
	ProgressLoadStart   = 20
	ProgressLoadDone    = 100
	ProgressDetectStart = 0
	ProgressPreprocess  = 30
	ProgressInference   = 80
	ProgressDone        = 100
)

// View is the full UI projection.
type View struct {
	State          string `json:"state"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	DetectEnabled  bool   `json:"detect_enabled"`
	PreviewVisible bool   `json:"preview_visible"`
	FileName       string `json:"file_name,omitempty"`
	ResultVisible  bool   `json:"result_visible"`
	ResultText     string `json:"result_text,omitempty"`
	ResultClass    string `json:"result_class,omitempty"`
	ConfidenceText string `json:"confidence_text,omitempty"`
}

// Snapshot is the presenter's input, copied out of a session.
type Snapshot struct {
	State    string
	Status   string
	Progress int
	FileName string
	HasFile  bool
	Busy     bool
	Result   *vision.Result
	Model    vision.ModelSnapshot
}

func LoadErrorStatus(err error) string {
	if err == nil {
		return loadErrorPrefix + "unknown error"
	}
	return loadErrorPrefix + err.Error()
}

func DetectErrorStatus(err error) string {
	if err == nil {
		return detectErrorPrefix + "unknown error"
	}
	return detectErrorPrefix + err.Error()
}

func ResultClass(label string) string {
	if label == vision.LabelAI {
		return ClassAIGenerated
	}
	return ClassReal
}

// ConfidenceText prints the shortest form of the rounded percentage, so 90.00
// renders as "90".
func ConfidenceText(confidence float64) string {
	return "Confidence: " + strconv.FormatFloat(confidence, 'f', -1, 64) + "%"
}

func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ModelStatus is the status line and progress while no session event has
// overridden them.
func ModelStatus(m vision.ModelSnapshot) (string, int) {
	switch m.State {
	case vision.ModelLoaded:
		return StatusModelLoaded, ProgressLoadDone
	case vision.ModelFailed:
		return LoadErrorStatus(m.Err), ProgressLoadStart
	default:
		return StatusModelLoading, ProgressLoadStart
	}
}

// Render projects a snapshot onto the page.
func Render(s Snapshot) View {
	v := View{
		State:          s.State,
		Status:         s.Status,
		Progress:       ClampProgress(s.Progress),
		PreviewVisible: s.HasFile,
		FileName:       s.FileName,
	}
	if v.Status == "" {
		v.Status, v.Progress = ModelStatus(s.Model)
	}

	v.DetectEnabled = s.Model.State == vision.ModelLoaded && s.HasFile && !s.Busy

	if s.Result != nil && !s.Busy {
		v.ResultVisible = true
		v.ResultText = s.Result.Label
		v.ResultClass = ResultClass(s.Result.Label)
		v.ConfidenceText = ConfidenceText(s.Result.Confidence)
	}
	return v
}
