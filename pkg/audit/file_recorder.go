package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileRecorder appends events as JSON lines. Listing is not supported;
// file output exists for development and offline shipping.
type FileRecorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileRecorder opens (or creates) the audit log file for appending.
func NewFileRecorder(path string) (*FileRecorder, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &FileRecorder{file: file, encoder: json.NewEncoder(file)}, nil
}

// Record appends one event.
func (r *FileRecorder) Record(ctx context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// ListResourceEvents is unsupported for file output.
func (r *FileRecorder) ListResourceEvents(ctx context.Context, scope string, resourceID int64, limit int) ([]*Event, error) {
	return nil, fmt.Errorf("file recorder does not support listing")
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
