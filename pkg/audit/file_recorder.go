package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileRecorder appends audit entries to a newline-delimited JSON file
type FileRecorder struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	maxSize  int64
	maxFiles int
}

// FileRecorderConfig configures the file recorder
type FileRecorderConfig struct {
	BasePath string // Directory for audit files
	MaxSize  int64  // Rotate after this many bytes (default: 100MB)
	MaxFiles int    // Rotated files to keep (default: 10)
}

// NewFileRecorder creates a new file-based recorder
func NewFileRecorder(config FileRecorderConfig) (*FileRecorder, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	recorder := &FileRecorder{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if recorder.maxSize == 0 {
		recorder.maxSize = 100 * 1024 * 1024
	}
	if recorder.maxFiles == 0 {
		recorder.maxFiles = 10
	}

	if err := recorder.openFile(); err != nil {
		return nil, err
	}

	return recorder, nil
}

func (r *FileRecorder) currentPath() string {
	return filepath.Join(r.basePath, "audit.log")
}

// openFile opens the current file, rotating it first when it is full
func (r *FileRecorder) openFile() error {
	if info, err := os.Stat(r.currentPath()); err == nil && info.Size() >= r.maxSize {
		if err := r.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	file, err := os.OpenFile(r.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	r.file = file
	r.encoder = json.NewEncoder(file)
	return nil
}

func (r *FileRecorder) rotate() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	rotated := filepath.Join(r.basePath, fmt.Sprintf("audit-%s.log", time.Now().UTC().Format("20060102-150405.000000000")))
	if err := os.Rename(r.currentPath(), rotated); err != nil {
		return fmt.Errorf("failed to rename audit log: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(r.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	// timestamped names sort oldest first
	sort.Strings(files)
	if len(files) > r.maxFiles {
		for _, f := range files[:len(files)-r.maxFiles] {
			if err := os.Remove(f); err != nil {
				return fmt.Errorf("failed to remove old audit log %s: %w", f, err)
			}
		}
	}

	return nil
}

// Record appends an entry
func (r *FileRecorder) Record(ctx context.Context, entry *Entry) error {
	prepare(ctx, entry)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return fmt.Errorf("audit log file is closed")
	}

	if info, err := r.file.Stat(); err == nil && info.Size() >= r.maxSize {
		if err := r.openFile(); err != nil {
			return err
		}
	}

	if err := r.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	return nil
}

// ReadEntries reads up to count entries from the current file, all when count <= 0
func (r *FileRecorder) ReadEntries(count int) ([]*Entry, error) {
	file, err := os.Open(r.currentPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var entries []*Entry
	decoder := json.NewDecoder(file)
	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		entries = append(entries, &entry)

		if count > 0 && len(entries) >= count {
			break
		}
	}

	return entries, nil
}

// Close closes the file
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
