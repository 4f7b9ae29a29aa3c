package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Outbox is the queue of chat messages awaiting delivery. It is kept as a
// single JSON document and rewritten atomically on every change, so the CLI
// and the daemon can both add to it.
type Outbox struct {
	mu   sync.Mutex
	path string
}

// NewOutbox returns an Outbox stored at path.
func NewOutbox(path string) *Outbox {
	return &Outbox{path: path}
}

// Path returns the queue file path.
func (o *Outbox) Path() string {
	return o.path
}

// Enqueue appends a message to the queue.
func (o *Outbox) Enqueue(m model.OutboundMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs, err := o.load()
	if err != nil {
		return err
	}
	for _, existing := range msgs {
		if existing.ID == m.ID {
			return nil
		}
	}
	return o.save(append(msgs, m))
}

// All returns every queued message in queue order.
func (o *Outbox) All() ([]model.OutboundMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load()
}

// Pending returns the messages that still await delivery, oldest first.
func (o *Outbox) Pending() ([]model.OutboundMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs, err := o.load()
	if err != nil {
		return nil, err
	}
	pending := msgs[:0]
	for _, m := range msgs {
		if m.Pending() {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Update replaces the stored copy of m (matched by ID). Unknown ids are
// ignored.
func (o *Outbox) Update(m model.OutboundMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs, err := o.load()
	if err != nil {
		return err
	}
	for i := range msgs {
		if msgs[i].ID == m.ID {
			msgs[i] = m
			return o.save(msgs)
		}
	}
	return nil
}

// RemoveSent drops delivered messages from the queue and returns how many
// were removed.
func (o *Outbox) RemoveSent() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs, err := o.load()
	if err != nil {
		return 0, err
	}
	kept := make([]model.OutboundMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Status != model.OutboundSent {
			kept = append(kept, m)
		}
	}
	removed := len(msgs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, o.save(kept)
}

func (o *Outbox) load() ([]model.OutboundMessage, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.OutboundMessage{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return []model.OutboundMessage{}, nil
	}

	var msgs []model.OutboundMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse outbox %s: %w", o.path, err)
	}
	return msgs, nil
}

func (o *Outbox) save(msgs []model.OutboundMessage) error {
	if err := os.MkdirAll(filepath.Dir(o.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := o.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, o.path)
}
