package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	// ErrSchemaNotFound is returned when no schema file matches a name.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrSchemaInvalid is returned when a schema file is not a valid JSON-Schema.
	ErrSchemaInvalid = errors.New("schema not valid")
)

// Meta-schema URLs that only mean "the current draft".
var unversionedMetaSchemas = map[string]bool{
	"http://json-schema.org/schema#":  true,
	"http://json-schema.org/schema":   true,
	"https://json-schema.org/schema#": true,
	"https://json-schema.org/schema":  true,
}

type cachedSchema struct {
	modTime time.Time
	size    int64
	raw     map[string]any
	schema  *jsonschema.Schema
}

// Store loads schemas from a directory. Compiled schemas are cached and
// recompiled when the file's modification time or size changes, or when
// Watch sees the file change.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	cache   map[string]*cachedSchema
	watcher *fsnotify.Watcher
}

// NewStore creates a Store reading from dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*cachedSchema),
	}
}

// Dir returns the schema directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the compiled schema called name.
func (s *Store) Load(name string) (*jsonschema.Schema, error) {
	entry, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return entry.schema, nil
}

// Raw returns the parsed document of the schema called name.
func (s *Store) Raw(name string) (map[string]any, error) {
	entry, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return entry.raw, nil
}

// Names lists the schema files in the directory.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) load(name string) (*cachedSchema, error) {
	path, info, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.cache[path]
	s.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry, nil
	}

	entry, err = compile(name, path)
	if err != nil {
		return nil, err
	}
	entry.modTime = info.ModTime()
	entry.size = info.Size()

	s.mu.Lock()
	s.cache[path] = entry
	s.mu.Unlock()

	s.logger.Debug("schema compiled", slog.String("schema", name), slog.String("path", path))
	return entry, nil
}

// resolve maps a schema name to a file inside the directory. Names that
// would escape the directory are treated as missing.
func (s *Store) resolve(name string) (string, os.FileInfo, error) {
	if name == "" || filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}

	candidates := []string{name}
	if !strings.HasSuffix(name, ".json") {
		candidates = append(candidates, name+".json")
	}
	for _, c := range candidates {
		path, err := filepath.Abs(filepath.Join(s.dir, filepath.FromSlash(c)))
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, info, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
}

func compile(name, path string) (*cachedSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, name, err)
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: not an object", ErrSchemaInvalid, name)
	}
	if meta, _ := raw["$schema"].(string); unversionedMetaSchemas[meta] {
		delete(raw, "$schema")
	}

	loc := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	if err := c.AddResource(loc, raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, name, err)
	}
	schema, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, name, err)
	}
	return &cachedSchema{raw: raw, schema: schema}, nil
}

// Invalidate drops the cached schema for path, or everything when path is
// empty.
func (s *Store) Invalidate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		s.cache = make(map[string]*cachedSchema)
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	delete(s.cache, path)
}

// Watch invalidates cached schemas when files in the directory change,
// until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	s.logger.Info("watching schema directory", slog.String("path", s.dir))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("schema watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					s.logger.Debug("schema file changed", slog.String("path", event.Name))
					s.Invalidate(event.Name)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("schema watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the schema directory.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
