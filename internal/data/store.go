package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/evilsocket/islazy/fs"
	log "github.com/sirupsen/logrus"
)

// DatFileExt is the extension of record files inside a store.
const DatFileExt = ".dat"

// Store is a directory of Datum records addressed by key and iterated in
// lexical key order.
type Store struct {
	sync.RWMutex
	path  string
	keys  []string
	files map[string]string
}

// Open loads the key index of an existing store.
func Open(path string) (*Store, error) {
	path, err := fs.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("store: expanding %s: %w", path, err)
	}
	if !fs.Exists(path) {
		return nil, fmt.Errorf("store: %s: %w", path, os.ErrNotExist)
	}
	s := &Store{path: path}
	if err := s.scan(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"path": path, "records": len(s.keys)}).Debug("store opened")
	return s, nil
}

// Create opens the store at path, creating the directory when missing.
func Create(path string) (*Store, error) {
	expanded, err := fs.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("store: expanding %s: %w", path, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", expanded, err)
	}
	return Open(expanded)
}

func (s *Store) scan() error {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("store: listing %s: %w", s.path, err)
	}
	s.files = make(map[string]string)
	s.keys = s.keys[:0]
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != DatFileExt {
			continue
		}
		key := strings.TrimSuffix(name, DatFileExt)
		s.files[key] = filepath.Join(s.path, name)
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)
	return nil
}

// Path returns the store directory.
func (s *Store) Path() string { return s.path }

// Len returns the number of records.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.keys)
}

// Keys returns the record keys in iteration order.
func (s *Store) Keys() []string {
	s.RLock()
	defer s.RUnlock()
	return append([]string(nil), s.keys...)
}

// Put writes or replaces the record stored under key.
func (s *Store) Put(key string, d *Datum) error {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("store: invalid key %q", key)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("store: %s: %w", key, err)
	}
	fileName := filepath.Join(s.path, key+DatFileExt)
	if err := Flush(d, fileName); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if _, found := s.files[key]; !found {
		s.files[key] = fileName
		i := sort.SearchStrings(s.keys, key)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = key
	}
	return nil
}

// Get reads the record stored under key.
func (s *Store) Get(key string) (*Datum, error) {
	s.RLock()
	fileName, found := s.files[key]
	s.RUnlock()
	if !found {
		return nil, fmt.Errorf("store: key %q: %w", key, os.ErrNotExist)
	}
	var d Datum
	if err := Load(fileName, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Cursor returns an iterator positioned on the first key.
func (s *Store) Cursor() *Cursor {
	return &Cursor{store: s}
}

// Cursor walks a store in key order and wraps around at the end.
type Cursor struct {
	store *Store
	pos   int
}

// Next returns the current record and advances, restarting from the first key
// after the last one.
func (c *Cursor) Next() (string, *Datum, error) {
	key, err := c.advance()
	if err != nil {
		return "", nil, err
	}
	d, err := c.store.Get(key)
	return key, d, err
}

func (c *Cursor) advance() (string, error) {
	c.store.RLock()
	defer c.store.RUnlock()
	if len(c.store.keys) == 0 {
		return "", fmt.Errorf("store %s is empty", c.store.path)
	}
	if c.pos >= len(c.store.keys) {
		log.WithField("path", c.store.path).Debug("store cursor restarting from first key")
		c.pos = 0
	}
	key := c.store.keys[c.pos]
	c.pos++
	return key, nil
}

// Skip advances the cursor by n records, wrapping as needed.
func (c *Cursor) Skip(n int) {
	if l := c.store.Len(); l > 0 {
		c.pos = (c.pos + n) % l
	}
}

