// Package settings persists the user's UI settings as a nested JSON
// document. The document is repaired against a default schema on load and
// written back to disk on every change.
//
// Store methods never return errors: a damaged or unwritable settings file
// degrades to defaults or to an in-memory-only session, with a logged
// diagnostic.
package settings

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/samcharles93/cudiffusion/internal/logger"
)

// Filename is the settings file name inside the data directory.
const Filename = "settings.json"

type Store struct {
	path     string
	defaults map[string]any
	log      logger.Logger
	flock    *flock.Flock

	mu   sync.Mutex
	data map[string]any
}

// New creates a Store backed by path. Until Load is called the in-memory
// document is a copy of defaults.
func New(path string, defaults map[string]any, log logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		path:     path,
		defaults: copyDocument(defaults),
		log:      log.With("component", "settings"),
		flock:    flock.New(path + ".lock"),
		data:     copyDocument(defaults),
	}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory document with the repaired contents of the
// settings file, or with the defaults if the file is missing or unreadable.
func (s *Store) Load() {
	doc := s.read()

	s.mu.Lock()
	s.data = doc
	s.mu.Unlock()
}

func (s *Store) read() map[string]any {
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info("settings file not found, using default settings", "path", s.path)
		return copyDocument(s.defaults)
	case err != nil:
		s.log.Warn("error reading settings, using default settings", "path", s.path, "err", err)
		return copyDocument(s.defaults)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.log.Warn("error parsing settings, using default settings", "path", s.path, "err", err)
		return copyDocument(s.defaults)
	}
	loaded, ok := decoded.(map[string]any)
	if !ok {
		s.log.Warn("settings file is not a JSON object, using default settings", "path", s.path, "got", typeName(decoded))
		return copyDocument(s.defaults)
	}

	doc, mismatches := Merge(loaded, s.defaults)
	for _, m := range mismatches {
		s.log.Warn("type mismatch for setting, using default value",
			"key", m.Path, "expected", m.Expected, "got", m.Actual)
	}
	return doc
}

// Save writes the in-memory document to disk.
func (s *Store) Save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
}

func (s *Store) saveLocked() {
	body, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		s.log.Error("error encoding settings", "err", err)
		return
	}
	body = append(body, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error("error saving settings", "path", s.path, "err", err)
		return
	}

	if err := s.flock.Lock(); err != nil {
		s.log.Warn("could not lock settings file, writing anyway", "path", s.path, "err", err)
	} else {
		defer func() { _ = s.flock.Unlock() }()
	}

	if err := writeFileAtomic(s.path, body); err != nil {
		s.log.Error("error saving settings", "path", s.path, "err", err)
	}
}

func writeFileAtomic(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Get returns the value at a slash-separated path such as
// "image_model/scheduler", or def if the path does not resolve.
func (s *Store) Get(path string, def any) any {
	keys, ok := splitPath(path)
	if !ok {
		s.log.Warn("malformed setting", "path", path)
		return def
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cur any = s.data
	for _, key := range keys {
		m, isMap := cur.(map[string]any)
		if !isMap {
			s.log.Warn("malformed setting", "path", path)
			return def
		}
		v, exists := m[key]
		if !exists {
			s.log.Warn("malformed setting", "path", path)
			return def
		}
		cur = v
	}
	return deepCopy(cur)
}

// GetBool is Get for boolean leaves; a non-bool value yields def.
func (s *Store) GetBool(path string, def bool) bool {
	if v, ok := s.Get(path, def).(bool); ok {
		return v
	}
	return def
}

// GetString is Get for string leaves; a non-string value yields def.
func (s *Store) GetString(path string, def string) string {
	if v, ok := s.Get(path, def).(string); ok {
		return v
	}
	return def
}

// Set assigns value at path, creating intermediate objects as needed, and
// saves the document. Writing through an existing non-object value is
// refused and leaves the document unchanged.
func (s *Store) Set(path string, value any) {
	keys, ok := splitPath(path)
	if !ok {
		s.log.Warn("failed to set setting", "path", path)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.data
	for _, key := range keys[:len(keys)-1] {
		next, exists := cur[key]
		if !exists {
			m := make(map[string]any)
			cur[key] = m
			cur = m
			continue
		}
		m, isMap := next.(map[string]any)
		if !isMap {
			s.log.Debug("refusing to overwrite non-object setting", "path", path, "at", key)
			return
		}
		cur = m
	}
	cur[keys[len(keys)-1]] = deepCopy(value)

	s.saveLocked()
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDocument(s.data)
}

func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	keys := strings.Split(path, "/")
	for _, k := range keys {
		if k == "" {
			return nil, false
		}
	}
	return keys, true
}
