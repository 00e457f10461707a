package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-image-detector/internal/model"
	"ai-image-detector/internal/presenter"
	"ai-image-detector/internal/vision"
)

// ResultCache stores results by image digest.
type ResultCache interface {
	Get(ctx context.Context, key string) (*vision.Result, bool, error)
	Set(ctx context.Context, key string, result *vision.Result) error
}

// DetectionRecorder keeps a history entry for a finished detection.
type DetectionRecorder interface {
	Record(ctx context.Context, detection model.Detection) error
}

// ProgressFunc receives each progress checkpoint of a detection.
type ProgressFunc func(progress int, status string)

type DetectInput struct {
	SessionID string
	File      vision.ImageFile
}

type DetectOutput struct {
	DetectionID string         `json:"detection_id"`
	Result      *vision.Result `json:"result"`
	Cached      bool           `json:"cached"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
}

// DetectService runs Loader -> Preprocessor -> Runner for one file.
type DetectService struct {
	holder   *vision.Holder
	cache    ResultCache
	recorder DetectionRecorder
	modelTag string
	log      logrus.FieldLogger
}

// NewDetectService wires the pipeline. cache and recorder may be nil.
func NewDetectService(holder *vision.Holder, cache ResultCache, recorder DetectionRecorder, modelTag string, log logrus.FieldLogger) *DetectService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DetectService{
		holder:   holder,
		cache:    cache,
		recorder: recorder,
		modelTag: modelTag,
		log:      log,
	}
}

func (s *DetectService) Detect(ctx context.Context, input DetectInput, progress ProgressFunc) (*DetectOutput, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	started := time.Now()

	if err := vision.ValidateFile(input.File); err != nil {
		return nil, err
	}
	m, err := s.holder.Model()
	if err != nil {
		return nil, &vision.InferenceError{Err: err}
	}
	progress(presenter.ProgressDetectStart, presenter.StatusProcessing)

	digest := sha256.Sum256(input.File.Data)
	imageHash := hex.EncodeToString(digest[:])
	out := &DetectOutput{DetectionID: uuid.NewString()}

	if cached := s.lookup(ctx, imageHash); cached != nil {
		progress(presenter.ProgressPreprocess, presenter.StatusAnalyzing)
		progress(presenter.ProgressInference, presenter.StatusAnalyzing)
		out.Result = cached
		out.Cached = true
		s.record(ctx, input, out, imageHash, started)
		return out, nil
	}

	img, err := vision.Decode(input.File)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	out.Width, out.Height = bounds.Dx(), bounds.Dy()

	tensor, err := vision.Preprocess(img)
	if err != nil {
		return nil, fmt.Errorf("preprocess image failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(presenter.ProgressPreprocess, presenter.StatusAnalyzing)

	result, err := vision.RunInference(ctx, m, tensor)
	if err != nil {
		return nil, err
	}
	progress(presenter.ProgressInference, presenter.StatusAnalyzing)

	out.Result = result
	s.store(ctx, imageHash, result)
	s.record(ctx, input, out, imageHash, started)
	return out, nil
}

func (s *DetectService) cacheKey(imageHash string) string {
	return fmt.Sprintf("%s:%s", s.modelTag, imageHash)
}

func (s *DetectService) lookup(ctx context.Context, imageHash string) *vision.Result {
	if s.cache == nil {
		return nil
	}
	result, hit, err := s.cache.Get(ctx, s.cacheKey(imageHash))
	if err != nil {
		s.log.WithError(err).Warn("result cache lookup failed")
		return nil
	}
	if !hit {
		return nil
	}
	return result
}

func (s *DetectService) store(ctx context.Context, imageHash string, result *vision.Result) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(imageHash), result); err != nil {
		s.log.WithError(err).Warn("result cache store failed")
	}
}

func (s *DetectService) record(ctx context.Context, input DetectInput, out *DetectOutput, imageHash string, started time.Time) {
	if s.recorder == nil {
		return
	}
	detection := model.Detection{
		DetectionID: out.DetectionID,
		SessionID:   input.SessionID,
		FileName:    input.File.Name,
		MIMEType:    input.File.MIMEType,
		ImageSHA256: imageHash,
		Width:       out.Width,
		Height:      out.Height,
		Label:       out.Result.Label,
		Confidence:  out.Result.Confidence,
		ProbAI:      out.Result.ProbAI,
		ProbReal:    out.Result.ProbReal,
		Cached:      out.Cached,
		LatencyMS:   time.Since(started).Milliseconds(),
		CreatedAt:   time.Now(),
	}
	if err := s.recorder.Record(ctx, detection); err != nil {
		s.log.WithError(err).WithField("detection_id", out.DetectionID).Warn("record detection failed")
	}
}
