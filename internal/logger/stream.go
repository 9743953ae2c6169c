package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 500

// Broadcaster forwards messages to connected dashboard clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Entry is a parsed log line for streaming and the dashboard log view.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// StreamWriter implements io.Writer. It keeps a bounded in-memory tail of
// log entries and forwards new ones to the attached hub.
type StreamWriter struct {
	mu      sync.RWMutex
	hub     Broadcaster
	entries []Entry
	next    int
	full    bool
}

// NewStreamWriter creates a stream writer with the given buffer capacity.
func NewStreamWriter(size int) *StreamWriter {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &StreamWriter{entries: make([]Entry, size)}
}

// SetHub attaches the hub that receives new entries.
func (w *StreamWriter) SetHub(hub Broadcaster) {
	w.mu.Lock()
	w.hub = hub
	w.mu.Unlock()
}

// Write receives a JSON log line from zerolog. Lines that fail to parse
// are dropped; logging must never error out the writer chain.
func (w *StreamWriter) Write(p []byte) (int, error) {
	entry, err := parseEntry(p)
	if err != nil {
		return len(p), nil
	}

	w.mu.Lock()
	w.entries[w.next] = entry
	w.next = (w.next + 1) % len(w.entries)
	if w.next == 0 {
		w.full = true
	}
	hub := w.hub
	w.mu.Unlock()

	if hub != nil {
		hub.Broadcast("logs:entry", entry)
	}
	return len(p), nil
}

// Recent returns buffered entries oldest first.
func (w *StreamWriter) Recent() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.full {
		out := make([]Entry, w.next)
		copy(out, w.entries[:w.next])
		return out
	}

	out := make([]Entry, 0, len(w.entries))
	out = append(out, w.entries[w.next:]...)
	out = append(out, w.entries[:w.next]...)
	return out
}

func parseEntry(data []byte) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, err
	}

	entry := Entry{Fields: make(map[string]any)}

	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	for k, v := range raw {
		entry.Fields[k] = v
	}

	return entry, nil
}
