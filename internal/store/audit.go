package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

const (
	auditKey = "audit"
	// maxAuditEntries caps the security audit log; older entries rotate
	// out.
	maxAuditEntries = 100
)

// Severity classifies an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AuditEntry is one security-relevant event in the update pipeline.
type AuditEntry struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Version  string    `json:"version,omitempty"`
	Platform string    `json:"platform,omitempty"`
	Severity Severity  `json:"severity"`
	Detail   string    `json:"detail,omitempty"`
}

// AuditLog is the bounded security event log. Every verification and apply
// attempt leaves a record here, success or failure.
type AuditLog struct {
	store Store
	now   func() time.Time
}

// NewAuditLog wraps a store.
func NewAuditLog(s Store) *AuditLog {
	return &AuditLog{store: s, now: time.Now}
}

// Record appends an event, assigning an ID and timestamp when unset.
func (a *AuditLog) Record(entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Time.IsZero() {
		entry.Time = a.now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	entries, err := a.Entries()
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if len(entries) > maxAuditEntries {
		entries = entries[len(entries)-maxAuditEntries:]
	}

	data, err := seal(entries)
	if err != nil {
		return fmt.Errorf("seal audit log: %w", err)
	}
	return a.store.Set(auditKey, data)
}

// Entries returns the audit log, oldest first. A corrupt file is logged
// and treated as empty.
func (a *AuditLog) Entries() ([]AuditEntry, error) {
	data, ok, err := a.store.Get(auditKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []AuditEntry{}, nil
	}

	var entries []AuditEntry
	if err := open(data, &entries); err != nil {
		klog.Warningf("audit log unreadable, starting fresh: %v", err)
		return []AuditEntry{}, nil
	}
	return entries, nil
}

// Clear wipes the audit log.
func (a *AuditLog) Clear() error {
	return a.store.Remove(auditKey)
}
