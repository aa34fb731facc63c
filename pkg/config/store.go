package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Store is one persistent JSON state file with dotted-path access.
//
// Values are addressed gjson-style: "leveling_settings.xp_settings.messages.cooldown".
// Every mutation rewrites the whole file atomically (temp file + rename), so
// a concurrent reader sees either the prior or the new complete document,
// never a mixture. The mutex serializes writers; the event loop is the only
// writer in practice but tests hit stores from multiple goroutines.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  []byte
}

// OpenStore loads the JSON document at path. A missing or empty file starts
// from the given defaults (marshalled, not written until the first Set).
func OpenStore(path string, defaults any) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 && gjson.ValidBytes(data) {
		s.doc = data
		return s, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if defaults == nil {
		defaults = map[string]any{}
	}
	doc, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling defaults for %s: %w", path, err)
	}
	s.doc = doc
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns the value at the dotted path.
func (s *Store) Get(path string) gjson.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gjson.GetBytes(s.doc, path)
}

// Raw returns a copy of the whole document.
func (s *Store) Raw() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.doc))
	copy(out, s.doc)
	return out
}

// Set writes value at the dotted path and persists atomically.
func (s *Store) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := sjson.SetBytes(s.doc, path, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return s.persist(doc)
}

// SetRaw writes pre-encoded JSON at the dotted path.
func (s *Store) SetRaw(path string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := sjson.SetRawBytes(s.doc, path, raw)
	if err != nil {
		return fmt.Errorf("set raw %s: %w", path, err)
	}
	return s.persist(doc)
}

// Delete removes the value at the dotted path and persists atomically.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := sjson.DeleteBytes(s.doc, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return s.persist(doc)
}

// Replace swaps the entire document and persists atomically. Used by the
// mirror poller when the remote copy changes.
func (s *Store) Replace(doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("replace %s: not valid JSON", s.path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(doc)
}

// Reload re-reads the backing file, adopting it as the in-memory copy.
// The current document is kept when the file is missing or invalid. Used
// after an external writer (the mirror poller) rewrites the file.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return fmt.Errorf("reload %s: not valid JSON", s.path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = data
	return nil
}

// persist writes doc to disk via temp+rename and, on success, adopts it as
// the in-memory copy. Callers hold the write lock.
func (s *Store) persist(doc []byte) error {
	if err := WriteFileAtomic(s.path, doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by rename, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
