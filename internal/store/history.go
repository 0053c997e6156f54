package store

import (
	"fmt"
	"time"

	"k8s.io/klog/v2"
)

const (
	historyKey = "history"
	// maxHistoryEntries caps the retained update history.
	maxHistoryEntries = 100
)

// HistoryEntry records one attempted update. URL, ContentHash and Mandatory
// snapshot the descriptor that drove the attempt, so history stays useful
// after the server stops publishing that version.
type HistoryEntry struct {
	Version     string    `json:"version"`
	FromVersion string    `json:"fromVersion,omitempty"`
	URL         string    `json:"url,omitempty"`
	ContentHash string    `json:"contentHash,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Mandatory   bool      `json:"mandatory,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// History is the durable record of past update attempts, newest last.
type History struct {
	store Store
}

// NewHistory wraps a store.
func NewHistory(s Store) *History {
	return &History{store: s}
}

// Entries returns the recorded history. A corrupt or tampered history file
// is logged and treated as empty: history is advisory, and a poisoned file
// must not wedge the pipeline.
func (h *History) Entries() ([]HistoryEntry, error) {
	data, ok, err := h.store.Get(historyKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []HistoryEntry{}, nil
	}

	var entries []HistoryEntry
	if err := open(data, &entries); err != nil {
		klog.Warningf("update history unreadable, starting fresh: %v", err)
		return []HistoryEntry{}, nil
	}
	return entries, nil
}

// Append records an update attempt, trimming the oldest entries beyond the
// cap.
func (h *History) Append(entry HistoryEntry) error {
	entries, err := h.Entries()
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}

	data, err := seal(entries)
	if err != nil {
		return fmt.Errorf("seal history: %w", err)
	}
	return h.store.Set(historyKey, data)
}
