package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// FilePrefs keeps preferences in one JSON file that is replaced atomically
// on every write.
type FilePrefs struct {
	mu   sync.Mutex
	path string
}

// OpenFile returns a file-backed prefs store. The file is created on the
// first write.
func OpenFile(path string) (*FilePrefs, error) {
	return &FilePrefs{path: path}, nil
}

// Close is a no-op; the file is never held open.
func (f *FilePrefs) Close() error { return nil }

// Load returns every stored key. A missing file is an empty store.
func (f *FilePrefs) Load(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Save merges values into the file.
func (f *FilePrefs) Save(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		return err
	}
	maps.Copy(current, values)
	return f.write(current)
}

// Delete removes keys from the file.
func (f *FilePrefs) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(current, k)
	}
	return f.write(current)
}

func (f *FilePrefs) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs file: %w", err)
	}
	values := map[string]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse prefs file: %w", err)
	}
	return values, nil
}

func (f *FilePrefs) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write prefs file: %w", err)
	}
	return nil
}
