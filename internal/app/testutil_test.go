package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"ai-image-detector/internal/model"
	"ai-image-detector/internal/vision"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pngFile(t *testing.T, name string, w, h int) vision.ImageFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return vision.ImageFile{Name: name, MIMEType: vision.MIMEPNG, Data: buf.Bytes()}
}

type stubModel struct {
	mu    sync.Mutex
	out   []float32
	err   error
	calls int
	gate  chan struct{}
}

func (m *stubModel) Predict(ctx context.Context, input *vision.Tensor) ([]float32, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]float32(nil), m.out...), nil
}

func (m *stubModel) Close() error { return nil }

func (m *stubModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memoryCache struct {
	mu     sync.Mutex
	items  map[string]vision.Result
	getErr error
	setErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]vision.Result)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (*vision.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	r, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, result *vision.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.items[key] = *result
	return nil
}

type memoryRecorder struct {
	mu   sync.Mutex
	rows []model.Detection
	err  error
}

func (r *memoryRecorder) Record(ctx context.Context, d model.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, d)
	return nil
}

func (r *memoryRecorder) Rows() []model.Detection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Detection(nil), r.rows...)
}

var errBoom = errors.New("boom")
