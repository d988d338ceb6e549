// Package studio coordinates model loads and image generations against a
// single diffusion engine. At most one load or generation runs at a time;
// anything arriving while one is in flight is rejected, not queued.
package studio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/cudiffusion/internal/diffusion"
	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/metrics"
	"github.com/samcharles93/cudiffusion/internal/output"
	"github.com/samcharles93/cudiffusion/internal/settings"
)

const subscriberBuffer = 8

type Config struct {
	ModelsDir string
	Output    *output.Dir
	Settings  *settings.Store
	Factory   diffusion.Factory
	Threads   int
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// Studio owns the busy phase and the loaded engine.
type Studio struct {
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	phase   Phase
	modelID string
	engine  diffusion.Engine
	subs    map[int]chan State
	nextSub int
	closed  bool
}

func New(cfg Config) (*Studio, error) {
	if cfg.Factory == nil {
		return nil, errors.New("studio: engine factory is required")
	}
	if cfg.Output == nil {
		return nil, errors.New("studio: output directory is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("studio: settings store is required")
	}
	if cfg.ModelsDir == "" {
		return nil, errors.New("studio: models directory is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Studio{
		cfg:  cfg,
		log:  log.With("component", "studio"),
		subs: make(map[int]chan State),
	}, nil
}

// ModelsDir returns the directory models are loaded from.
func (s *Studio) ModelsDir() string { return s.cfg.ModelsDir }

// State returns the current snapshot.
func (s *Studio) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Studio) stateLocked() State {
	return newState(s.phase, s.modelID, s.engine != nil && s.modelID != "")
}

// Subscribe delivers every state change. A subscriber that falls behind
// misses intermediate states. The channel is closed by cancel or Close.
func (s *Studio) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.stateLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Studio) publishLocked() {
	st := s.stateLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// acquire moves Idle to p atomically, or fails with ErrBusy.
func (s *Studio) acquire(p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("studio is closed")
	}
	if s.phase != PhaseIdle {
		s.cfg.Metrics.Reject("busy")
		s.log.Debug("request rejected", "reason", "busy", "phase", s.phase.String(), "wanted", p.String())
		return ErrBusy
	}
	s.phase = p
	s.cfg.Metrics.SetBusy(true)
	s.publishLocked()
	return nil
}

func (s *Studio) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseIdle
	s.cfg.Metrics.SetBusy(false)
	s.publishLocked()
}

// Close releases the engine and ends all subscriptions.
func (s *Studio) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	if s.engine == nil {
		return nil
	}
	err := safeClose(s.engine)
	s.engine = nil
	s.modelID = ""
	return err
}

func safeClose(e diffusion.Engine) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Close: %v", rec)
		}
	}()
	return e.Close()
}
