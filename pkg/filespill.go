// Package pkg holds helpers shared by the fracture commands.
package pkg

import (
	"encoding/gob"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileSpill is an append-only, gob-encoded list of T kept on disk, so that a
// run can hold more unit results and test cases than it keeps in memory.
// Readers must not append while they iterate.
type FileSpill[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	AppendBatch(items []T) error
	Get(index uint64) (T, error)
	Range(f func(index uint64, item T) error) error
	// All yields the items in append order. A decode failure is yielded once
	// with the zero item and ends the sequence.
	All() iter.Seq2[T, error]
	Close() error
	// Remove closes the spill and deletes its file.
	Remove() error
}

type fileSpill[T any] struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *gob.Encoder
	length  uint64
}

// errStopScan ends a scan early without reporting an error.
var errStopScan = errors.New("stop scan")

// NewFileSpill creates a spill for items of type T in dir. An empty dir
// spills into the system temp directory.
func NewFileSpill[T any](dir string) (FileSpill[T], error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "fracture-spill")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Error("Failed to create spill directory", "path", dir, "error", err)
		return nil, fmt.Errorf("create spill directory: %w", err)
	}

	file, err := os.CreateTemp(dir, "spill-*.gob")
	if err != nil {
		slog.Error("Failed to create spill file", "path", dir, "error", err)
		return nil, fmt.Errorf("create spill file: %w", err)
	}

	slog.Debug("Created spill", "path", file.Name())

	return &fileSpill[T]{
		path:    file.Name(),
		file:    file,
		encoder: gob.NewEncoder(file),
	}, nil
}

func (f *fileSpill[T]) Path() string {
	return f.path
}

func (f *fileSpill[T]) Len() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.length
}

func (f *fileSpill[T]) Append(item T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.append(item)
}

// AppendBatch appends items under one lock so concurrent batches stay
// contiguous.
func (f *fileSpill[T]) AppendBatch(items []T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range items {
		if err := f.append(item); err != nil {
			return err
		}
	}

	return nil
}

func (f *fileSpill[T]) append(item T) error {
	if f.file == nil {
		return fmt.Errorf("append to closed spill %s", f.path)
	}

	if err := f.encoder.Encode(item); err != nil {
		slog.Error("Failed to encode spill item", "path", f.path, "index", f.length, "error", err)
		return fmt.Errorf("encode item %d: %w", f.length, err)
	}

	f.length++

	return nil
}

func (f *fileSpill[T]) Get(index uint64) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var found T

	if index >= f.length {
		return found, fmt.Errorf("index %d out of bounds (length %d)", index, f.length)
	}

	err := f.scan(index+1, func(i uint64, item T) error {
		if i < index {
			return nil
		}

		found = item

		return errStopScan
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return found, nil
}

func (f *fileSpill[T]) Range(fn func(index uint64, item T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.scan(f.length, fn)
}

func (f *fileSpill[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		f.mu.Lock()
		defer f.mu.Unlock()

		err := f.scan(f.length, func(_ uint64, item T) error {
			if !yield(item, nil) {
				return errStopScan
			}

			return nil
		})
		if err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// scan decodes the first limit items from the start of the file. fn may
// return errStopScan to end the scan cleanly. The caller holds f.mu.
func (f *fileSpill[T]) scan(limit uint64, fn func(index uint64, item T) error) error {
	if limit == 0 {
		return nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		slog.Error("Failed to open spill", "path", f.path, "error", err)
		return fmt.Errorf("open spill: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("Failed to close spill reader", "path", f.path, "error", err)
		}
	}()

	decoder := gob.NewDecoder(file)

	for i := range limit {
		// gob leaves zero-valued fields untouched, so each item decodes into a
		// fresh value.
		var item T
		if err := decoder.Decode(&item); err != nil {
			slog.Error("Failed to decode spill item", "path", f.path, "index", i, "error", err)
			return fmt.Errorf("decode item %d: %w", i, err)
		}

		if err := fn(i, item); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}

			return err
		}
	}

	return nil
}

func (f *fileSpill[T]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}

	err := f.file.Close()
	f.file = nil

	if err != nil {
		slog.Error("Failed to close spill", "path", f.path, "error", err)
		return fmt.Errorf("close spill: %w", err)
	}

	slog.Debug("Closed spill", "path", f.path, "length", f.length)

	return nil
}

func (f *fileSpill[T]) Remove() error {
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to remove spill", "path", f.path, "error", err)
		return fmt.Errorf("remove spill: %w", err)
	}

	return nil
}
