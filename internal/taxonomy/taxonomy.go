// Package taxonomy holds the candidate label set used by zero-shot
// classification. The built-in set can be overridden by a YAML file,
// optionally hot-reloaded while the bot is serving.
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultLabels is the built-in candidate label set.
var DefaultLabels = []string{"note", "todo", "reminder", "journal", "idea"}

// DefaultLabel is the fallback category when classification degrades.
const DefaultLabel = "note"

// Set is a thread-safe candidate label set.
type Set struct {
	mu       sync.RWMutex
	labels   []string
	fallback string
	path     string
	logger   *slog.Logger
}

type fileSchema struct {
	Labels  []string `yaml:"labels"`
	Default string   `yaml:"default"`
}

// NewSet returns a Set containing the built-in labels.
func NewSet(logger *slog.Logger) *Set {
	return &Set{
		labels:   append([]string(nil), DefaultLabels...),
		fallback: DefaultLabel,
		logger:   logger,
	}
}

// Load reads a label set from a YAML file. A missing or invalid file is
// an error; use NewSet when no override file is configured.
func Load(path string, logger *slog.Logger) (*Set, error) {
	s := NewSet(logger)
	s.path = path
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read labels file %s: %w", s.path, err)
	}

	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse labels file %s: %w", s.path, err)
	}
	if len(f.Labels) == 0 {
		return fmt.Errorf("labels file %s: no labels defined", s.path)
	}
	fallback := f.Default
	if fallback == "" {
		fallback = f.Labels[0]
	}
	if !contains(f.Labels, fallback) {
		return fmt.Errorf("labels file %s: default %q not in label set", s.path, fallback)
	}

	s.mu.Lock()
	s.labels = f.Labels
	s.fallback = fallback
	s.mu.Unlock()

	s.logger.Info("label taxonomy loaded", "path", s.path, "labels", len(f.Labels), "default", fallback)
	return nil
}

// Labels returns a copy of the current candidate labels.
func (s *Set) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.labels...)
}

// Default returns the fallback label.
func (s *Set) Default() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback
}

// Contains reports whether label is in the current set.
func (s *Set) Contains(label string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return contains(s.labels, label)
}

// Watch reloads the label file whenever it changes, until ctx is done.
// Reload errors keep the previous set and are logged, not fatal.
func (s *Set) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("taxonomy watch: no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("taxonomy watch: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("taxonomy watch %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
					if err := s.reload(); err != nil {
						s.logger.Warn("label taxonomy reload failed, keeping previous set", "err", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("label taxonomy watcher error", "err", err)
			}
		}
	}()

	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
