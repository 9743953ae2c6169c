// Package status keeps a rolling in-memory record of recent notification
// deliveries, scan runs and service connectivity for the dashboard API.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Trigger describes what started a scan.
type Trigger string

const (
	TriggerBatch  Trigger = "batch"
	TriggerManual Trigger = "manual"
	TriggerItem   Trigger = "item"
)

// NotificationRecord is one Discord delivery attempt.
type NotificationRecord struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	MediaKey  string    `json:"mediaKey"`
	Title     string    `json:"title"`
	ItemCount int       `json:"itemCount"`
	Mentions  []string  `json:"mentions,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// ScanStatus is the lifecycle state of a scan run.
type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// ScanRecord is one Plex scan run, or a request folded into one. A record
// is added as pending when the scan starts and updated when it finishes.
type ScanRecord struct {
	ID         string     `json:"id"`
	Target     string     `json:"target"`
	Trigger    Trigger    `json:"trigger"`
	Status     ScanStatus `json:"status"`
	Sections   int        `json:"sections"`
	Folded     int        `json:"folded,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt,omitzero"`
}

// ServiceStatus is the last known connectivity of an upstream service.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Online    bool      `json:"online"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Broadcaster pushes new records to live dashboard clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Store holds recent activity inside the retention window. All methods
// are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	retention     time.Duration
	notifications []NotificationRecord
	scans         []ScanRecord
	services      map[string]ServiceStatus
	broadcaster   Broadcaster
}

// NewStore creates a store that retains records for the given window.
func NewStore(retention time.Duration) *Store {
	return &Store{
		retention: retention,
		services:  make(map[string]ServiceStatus),
	}
}

// SetBroadcaster attaches a hub that receives each new record as it is
// added.
func (s *Store) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

func (s *Store) broadcast(msgType string, payload interface{}) {
	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()
	if b != nil {
		b.Broadcast(msgType, payload)
	}
}

// AddNotification records a delivery attempt and returns its ID.
func (s *Store) AddNotification(rec NotificationRecord) string {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	s.mu.Lock()
	s.notifications = append(s.notifications, rec)
	s.mu.Unlock()
	s.broadcast("notification", rec)
	return rec.ID
}

// AddScan records a scan run and returns its ID. Pending records keep a
// zero FinishedAt until UpdateScan resolves them.
func (s *Store) AddScan(rec ScanRecord) string {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.Status != ScanPending && rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	s.mu.Lock()
	s.scans = append(s.scans, rec)
	s.mu.Unlock()
	s.broadcast("scan", rec)
	return rec.ID
}

// UpdateScan replaces the scan record with the same ID, typically moving
// it from pending to a terminal status. Unknown IDs are ignored so a
// record pruned mid-scan does not resurface.
func (s *Store) UpdateScan(rec ScanRecord) bool {
	s.mu.Lock()
	found := false
	for i := range s.scans {
		if s.scans[i].ID == rec.ID {
			s.scans[i] = rec
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.broadcast("scan", rec)
	}
	return found
}

// SetService records the latest connectivity check for a service.
func (s *Store) SetService(st ServiceStatus) {
	if st.CheckedAt.IsZero() {
		st.CheckedAt = time.Now()
	}
	s.mu.Lock()
	s.services[st.Name] = st
	s.mu.Unlock()
	s.broadcast("service", st)
}

// Notifications returns retained delivery records, newest first.
func (s *Store) Notifications() []NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NotificationRecord, len(s.notifications))
	for i, rec := range s.notifications {
		out[len(s.notifications)-1-i] = rec
	}
	return out
}

// Scans returns retained scan records, newest first.
func (s *Store) Scans() []ScanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScanRecord, len(s.scans))
	for i, rec := range s.scans {
		out[len(s.scans)-1-i] = rec
	}
	return out
}

// Services returns the last known status of each checked service.
func (s *Store) Services() []ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServiceStatus, 0, len(s.services))
	for _, st := range s.services {
		out = append(out, st)
	}
	return out
}

// Prune drops records older than the retention window relative to now.
func (s *Store) Prune(now time.Time) int {
	cutoff := now.Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	kept := s.notifications[:0]
	for _, rec := range s.notifications {
		if rec.SentAt.After(cutoff) {
			kept = append(kept, rec)
		} else {
			dropped++
		}
	}
	s.notifications = kept

	keptScans := s.scans[:0]
	for _, rec := range s.scans {
		// A pending scan has no finish time yet; age it by its start.
		ts := rec.FinishedAt
		if ts.IsZero() {
			ts = rec.StartedAt
		}
		if ts.After(cutoff) {
			keptScans = append(keptScans, rec)
		} else {
			dropped++
		}
	}
	s.scans = keptScans

	return dropped
}
