package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Service holds the current settings and notifies subscribers on change.
type Service struct {
	workspace string
	persist   bool
	logger    *zap.Logger

	mu        sync.RWMutex
	file      Settings
	overrides []func(*Settings)
	subs      map[int]func(Settings)
	nextSub   int
}

// NewService loads settings from a workspace.
func NewService(workspace string, logger *zap.Logger) (*Service, error) {
	s, err := Load(workspace)
	if err != nil {
		return nil, err
	}
	svc := newService(s, logger)
	svc.workspace = workspace
	svc.persist = true
	return svc, nil
}

// NewStaticService returns a service that keeps settings in memory only.
func NewStaticService(s Settings) *Service {
	return newService(s, nil)
}

func newService(s Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		file:   s,
		logger: logger,
		subs:   make(map[int]func(Settings)),
	}
}

// Get returns the effective settings (file values plus overrides).
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveLocked()
}

func (s *Service) effectiveLocked() Settings {
	out := s.file
	for _, o := range s.overrides {
		o(&out)
	}
	return out
}

// Override registers an in-memory adjustment applied on every Get. Overrides are never saved.
func (s *Service) Override(fn func(*Settings)) {
	s.mu.Lock()
	s.overrides = append(s.overrides, fn)
	next := s.effectiveLocked()
	s.mu.Unlock()
	s.notify(next)
}

// Update applies fn to the stored settings, saves them and notifies subscribers.
func (s *Service) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	next := s.file
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	if s.persist {
		if err := Save(s.workspace, next); err != nil {
			s.mu.Unlock()
			return Settings{}, fmt.Errorf("save settings: %w", err)
		}
	}
	s.file = next
	effective := s.effectiveLocked()
	s.mu.Unlock()
	s.notify(effective)
	return effective, nil
}

// Subscribe registers fn for change notifications and returns an unsubscribe func.
func (s *Service) Subscribe(fn func(Settings)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(next Settings) {
	s.mu.RLock()
	subs := make([]func(Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("settings subscriber panicked", zap.Any("panic", r))
				}
			}()
			fn(next)
		}()
	}
}

// Reload re-reads the settings file and notifies subscribers.
func (s *Service) Reload() error {
	if !s.persist {
		return nil
	}
	next, err := Load(s.workspace)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.file = next
	effective := s.effectiveLocked()
	s.mu.Unlock()
	s.notify(effective)
	return nil
}

// Watch reloads settings whenever the file is changed by another process. It blocks until
// ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	if !s.persist {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	path := Path(s.workspace)
	// the directory is watched because editors replace the file on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	name := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("settings reload failed", zap.Error(err))
				continue
			}
			s.logger.Info("settings reloaded", zap.String("path", path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", zap.Error(err))
		}
	}
}
