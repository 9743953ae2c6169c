// Package webhook parses inbound *Arr webhook payloads into normalized
// media events.
package webhook

import (
	"fmt"
	"time"
)

// Source identifies which *Arr application sent a webhook.
type Source string

const (
	SourceSonarr  Source = "sonarr"
	SourceRadarr  Source = "radarr"
	SourceReadarr Source = "readarr"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceSonarr, SourceRadarr, SourceReadarr:
		return true
	}
	return false
}

// Episode describes one TV episode within an event.
type Episode struct {
	Season   int    `json:"season"`
	Number   int    `json:"number"`
	Title    string `json:"title,omitempty"`
	AirDate  string `json:"airDate,omitempty"`
	Overview string `json:"overview,omitempty"`
}

// MediaEvent is one notification-worthy occurrence, normalized across
// sources. Episode is nil for movies and books.
type MediaEvent struct {
	Source     Source    `json:"source"`
	MediaKey   string    `json:"mediaKey"`
	Title      string    `json:"title"`
	Year       int       `json:"year,omitempty"`
	PosterURL  string    `json:"posterUrl,omitempty"`
	FanartURL  string    `json:"fanartUrl,omitempty"`
	Episode    *Episode  `json:"episode,omitempty"`
	Quality    string    `json:"quality,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ErrorKind classifies a normalization failure.
type ErrorKind string

const (
	// KindMalformedPayload marks a payload missing required fields or
	// carrying mistyped values. The event is dropped; webhook senders do
	// not provide redelivery semantics worth retrying against.
	KindMalformedPayload ErrorKind = "malformed_payload"
)

// NormalizationError describes why a payload could not be normalized.
type NormalizationError struct {
	Kind    ErrorKind
	Message string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func malformed(format string, args ...any) *NormalizationError {
	return &NormalizationError{
		Kind:    KindMalformedPayload,
		Message: fmt.Sprintf(format, args...),
	}
}
