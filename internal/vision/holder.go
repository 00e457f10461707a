package vision

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type ModelState int

const (
	ModelUninitialized ModelState = iota
	ModelLoading
	ModelLoaded
	ModelFailed
)

func (s ModelState) String() string {
	switch s {
	case ModelLoading:
		return "loading"
	case ModelLoaded:
		return "loaded"
	case ModelFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// LoadError is a model fetch or parse failure. It is permanent for the process.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoaderFunc produces the model. It is called at most once per Holder.
type LoaderFunc func(ctx context.Context) (Model, error)

// ModelSnapshot is a read-only view of a Holder.
type ModelSnapshot struct {
	State    ModelState
	Err      error
	LoadedAt time.Time
}

// Holder owns the single process-wide model handle.
type Holder struct {
	mu       sync.RWMutex
	state    ModelState
	model    Model
	err      error
	loadedAt time.Time

	once sync.Once
	done chan struct{}
}

func NewHolder() *Holder {
	return &Holder{done: make(chan struct{})}
}

// NewLoadedHolder wraps an already constructed model.
func NewLoadedHolder(m Model) *Holder {
	h := NewHolder()
	_ = h.Load(context.Background(), func(context.Context) (Model, error) { return m, nil })
	return h
}

// Load runs load once and records the outcome. Later calls return the first
// outcome without loading again.
func (h *Holder) Load(ctx context.Context, load LoaderFunc) error {
	h.once.Do(func() {
		h.mu.Lock()
		h.state = ModelLoading
		h.mu.Unlock()

		m, err := load(ctx)
		if err == nil && m == nil {
			err = fmt.Errorf("loader returned no model")
		}

		h.mu.Lock()
		if err != nil {
			h.state = ModelFailed
			h.err = &LoadError{Err: err}
		} else {
			h.state = ModelLoaded
			h.model = m
			h.loadedAt = time.Now()
		}
		h.mu.Unlock()
		close(h.done)
	})

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Model returns the loaded model or ErrModelNotLoaded.
func (h *Holder) Model() (Model, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != ModelLoaded {
		return nil, ErrModelNotLoaded
	}
	return h.model, nil
}

func (h *Holder) Snapshot() ModelSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return ModelSnapshot{State: h.state, Err: h.err, LoadedAt: h.loadedAt}
}

// MarkLoading reports the Loading state before the loader goroutine gets to run.
func (h *Holder) MarkLoading() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == ModelUninitialized {
		h.state = ModelLoading
	}
}

// wait blocks until the load finished or ctx is done.
func (h *Holder) wait(ctx context.Context) error {
	select {
	case <-h.done:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return nil
	}
	err := h.model.Close()
	h.model = nil
	if h.state == ModelLoaded {
		h.state = ModelUninitialized
	}
	return err
}

// ONNXLoader downloads the model when needed and opens an ONNX session on it.
func ONNXLoader(client *http.Client, url, path, libPath string) LoaderFunc {
	return func(ctx context.Context) (Model, error) {
		if err := EnsureModelFile(ctx, client, url, path); err != nil {
			return nil, err
		}
		return NewONNXModel(path, libPath)
	}
}
