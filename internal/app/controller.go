package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-image-detector/internal/presenter"
	"ai-image-detector/internal/vision"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrDetectionInProgress = errors.New("detection already in progress")
	ErrNoFile              = errors.New("no image selected")
)

// State is the page state of one session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateModelLoading  State = "model_loading"
	StateReady         State = "ready"
	StateFilePending   State = "file_pending"
	StateDetecting     State = "detecting"
	StateResultShown   State = "result_shown"
	StateError         State = "error"
)

// Detector runs one detection.
type Detector interface {
	Detect(ctx context.Context, input DetectInput, progress ProgressFunc) (*DetectOutput, error)
}

// Controller owns the sessions and the shared model handle.
type Controller struct {
	holder   *vision.Holder
	detector Detector
	ttl      time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewController(holder *vision.Holder, detector Detector, ttl time.Duration, log logrus.FieldLogger) *Controller {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		holder:   holder,
		detector: detector,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Model reports the shared model state.
func (c *Controller) Model() vision.ModelSnapshot {
	return c.holder.Snapshot()
}

// CreateSession opens a new page session. Idle sessions are swept first.
func (c *Controller) CreateSession() *Session {
	c.Sweep()

	s := &Session{
		ID:       uuid.NewString(),
		holder:   c.holder,
		detector: c.detector,
		log:      c.log,
		now:      c.now,
		phase:    StateReady,
		touched:  c.now(),
	}
	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()
	return s
}

func (c *Controller) Session(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sweep drops sessions idle for longer than the ttl, except busy ones.
func (c *Controller) Sweep() int {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, s := range c.sessions {
		if s.idleSince(cutoff) {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Session is one page: the selected file, the last result and the status line.
type Session struct {
	ID string

	holder   *vision.Holder
	detector Detector
	log      logrus.FieldLogger
	now      func() time.Time

	mu       sync.Mutex
	phase    State
	file     *vision.ImageFile
	result   *vision.Result
	status   string
	progress int
	touched  time.Time
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(s.holder.Snapshot())
}

func (s *Session) View() presenter.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// SelectFile replaces the pending file. A rejected file leaves the previous
// selection and phase untouched.
func (s *Session) SelectFile(file vision.ImageFile) (presenter.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = s.now()

	if s.phase == StateDetecting {
		return s.viewLocked(), ErrDetectionInProgress
	}
	if err := vision.ValidateFile(file); err != nil {
		current := s.viewLocked()
		s.status = presenter.StatusFileRejected
		s.progress = current.Progress
		s.log.WithFields(logrus.Fields{"session_id": s.ID, "file": file.Name, "mime_type": file.MIMEType}).Info("file rejected")
		return s.viewLocked(), err
	}

	current := s.viewLocked()
	s.file = &file
	s.result = nil
	s.phase = StateFilePending
	s.status = presenter.StatusFileAccepted
	s.progress = current.Progress
	return s.viewLocked(), nil
}

// Detect runs the pipeline on the selected file. onView, when set, receives
// the projection after every checkpoint. A second call while one is running
// fails with ErrDetectionInProgress.
func (s *Session) Detect(ctx context.Context, onView func(presenter.View)) (*DetectOutput, presenter.View, error) {
	if onView == nil {
		onView = func(presenter.View) {}
	}

	s.mu.Lock()
	s.touched = s.now()
	if s.phase == StateDetecting {
		v := s.viewLocked()
		s.mu.Unlock()
		return nil, v, ErrDetectionInProgress
	}
	if s.file == nil {
		v := s.viewLocked()
		s.mu.Unlock()
		return nil, v, ErrNoFile
	}
	file := *s.file
	s.phase = StateDetecting
	s.result = nil
	s.mu.Unlock()

	out, err := s.detector.Detect(ctx, DetectInput{SessionID: s.ID, File: file}, func(progress int, status string) {
		s.mu.Lock()
		s.progress = progress
		s.status = status
		v := s.viewLocked()
		s.mu.Unlock()
		onView(v)
	})

	s.mu.Lock()
	s.touched = s.now()
	if err != nil {
		s.phase = StateError
		s.status = presenter.DetectErrorStatus(err)
		s.log.WithFields(logrus.Fields{"session_id": s.ID, "file": file.Name}).WithError(err).Error("detection failed")
	} else {
		s.phase = StateResultShown
		s.result = out.Result
		s.status = presenter.StatusComplete
		s.progress = presenter.ProgressDone
	}
	v := s.viewLocked()
	s.mu.Unlock()
	onView(v)

	if err != nil {
		return nil, v, err
	}
	return out, v, nil
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != StateDetecting && s.touched.Before(cutoff)
}

// stateLocked combines the session phase with the shared model state. Until
// the model is loaded every phase but a running detection reports the model
// state.
func (s *Session) stateLocked(m vision.ModelSnapshot) State {
	switch {
	case m.State == vision.ModelFailed:
		return StateError
	case s.phase == StateDetecting:
		return s.phase
	case m.State == vision.ModelUninitialized:
		return StateUninitialized
	case m.State == vision.ModelLoading:
		return StateModelLoading
	}
	return s.phase
}

func (s *Session) viewLocked() presenter.View {
	m := s.holder.Snapshot()
	snap := presenter.Snapshot{
		State:    string(s.stateLocked(m)),
		Status:   s.status,
		Progress: s.progress,
		HasFile:  s.file != nil,
		Busy:     s.phase == StateDetecting,
		Result:   s.result,
		Model:    m,
	}
	if s.file != nil {
		snap.FileName = s.file.Name
	}
	return presenter.Render(snap)
}
