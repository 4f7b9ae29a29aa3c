package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// SchemaVersion is the current history file schema version.
const SchemaVersion = 1

// Persistence defines the interface for history storage.
type Persistence interface {
	// Load reads all notifications from storage.
	Load() ([]model.Notification, error)

	// Append adds a notification to storage.
	Append(n model.Notification) error

	// Rewrite replaces the entire storage file (used after updates and prune).
	Rewrite(ns []model.Notification) error

	// Clear removes all stored notifications.
	Clear() error

	// Close releases file handles and resources.
	Close() error
}

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	SchemaVersion int   `json:"chatnotify_schema_version"`
	CreatedAt     int64 `json:"created_at"`
}

// ErrPersistenceClosed is returned when operations are attempted on a closed persistence.
var ErrPersistenceClosed = errors.New("persistence is closed")

// JSONLPersistence implements Persistence using a JSONL file with a
// schema header line.
type JSONLPersistence struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// NewJSONLPersistence opens (creating if needed) the history file at path.
func NewJSONLPersistence(path string) (*JSONLPersistence, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	p := &JSONLPersistence{path: path, file: file}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := p.writeHeader(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return p, nil
}

// Path returns the file backing the persistence.
func (p *JSONLPersistence) Path() string {
	return p.path
}

func (p *JSONLPersistence) writeHeader() error {
	data, err := json.Marshal(schemaHeader{
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = p.file.Write(append(data, '\n'))
	return err
}

// Load reads all notifications from storage. Malformed lines are skipped.
func (p *JSONLPersistence) Load() ([]model.Notification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return nil, ErrPersistenceClosed
	}

	if err := p.reopenIfReplaced(); err != nil {
		return nil, err
	}

	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", p.path, err)
	}

	var notifications []model.Notification
	scanner := bufio.NewScanner(p.file)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.SchemaVersion > 0 {
				if header.SchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.SchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var n model.Notification
		if err := json.Unmarshal(line, &n); err != nil {
			continue
		}
		if n.ID != "" {
			notifications = append(notifications, n)
		}
	}

	if err := scanner.Err(); err != nil {
		return notifications, fmt.Errorf("error reading file: %w", err)
	}

	if _, err := p.file.Seek(0, io.SeekEnd); err != nil {
		return notifications, err
	}

	return notifications, nil
}

// Append adds a notification to storage.
func (p *JSONLPersistence) Append(n model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return ErrPersistenceClosed
	}

	if err := p.reopenIfReplaced(); err != nil {
		return err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if _, err := p.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return p.file.Sync()
}

// reopenIfReplaced reopens the file when another process (the CLI running
// "history clear") has replaced it since it was opened. Callers hold p.mu.
func (p *JSONLPersistence) reopenIfReplaced() error {
	onDisk, err := os.Stat(p.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	current, err2 := p.file.Stat()
	if err2 != nil {
		return err2
	}
	if err == nil && os.SameFile(onDisk, current) {
		return nil
	}

	_ = p.file.Close()
	file, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		p.file = nil
		return fmt.Errorf("failed to reopen file %s: %w", p.path, err)
	}
	p.file = file

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return p.writeHeader()
	}
	return nil
}

// Rewrite replaces the entire storage file, keeping a backup until the
// new file is complete.
func (p *JSONLPersistence) Rewrite(ns []model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	if err := p.reopenTruncated(); err != nil {
		return err
	}

	for _, n := range ns {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if _, err := p.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}

	if err := p.file.Sync(); err != nil {
		return err
	}

	_ = os.Remove(p.path + ".bak")
	return nil
}

// Clear removes all stored notifications.
func (p *JSONLPersistence) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}
	if err := p.reopenTruncated(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	_ = os.Remove(p.path + ".bak")
	return nil
}

// reopenTruncated moves the current file to a backup and starts a new one
// containing only the header. Callers hold p.mu.
func (p *JSONLPersistence) reopenTruncated() error {
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			return err
		}
		p.file = nil
	}

	backupPath := p.path + ".bak"
	if err := os.Rename(p.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
	if err != nil {
		_ = os.Rename(backupPath, p.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	p.file = file

	return p.writeHeader()
}

// Close releases file handles and resources.
func (p *JSONLPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}
