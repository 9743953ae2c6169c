package webhook

import (
	"encoding/json"
	"time"
)

// Event types that produce notifications. Everything else that parses
// cleanly is acknowledged and skipped.
const (
	eventTest     = "Test"
	eventDownload = "Download"
)

// ErrIgnoredEvent is returned for well-formed payloads whose event type
// does not produce a notification (grabs, renames, health checks).
var ErrIgnoredEvent = &NormalizationError{Kind: "ignored_event", Message: "event type does not produce a notification"}

type parserFunc func(body []byte, now time.Time) ([]MediaEvent, error)

var parsers = map[Source]parserFunc{
	SourceSonarr:  parseSonarr,
	SourceRadarr:  parseRadarr,
	SourceReadarr: parseReadarr,
}

// Normalize turns a raw webhook body into zero or more media events.
// A multi-episode import expands into one event per episode, in payload
// order, all sharing the same media key.
func Normalize(source Source, body []byte, now time.Time) ([]MediaEvent, error) {
	parse, ok := parsers[source]
	if !ok {
		return nil, malformed("unknown source %q", source)
	}
	return parse(body, now)
}

// EventType extracts just the eventType field so handlers can
// short-circuit test payloads before full parsing.
func EventType(body []byte) string {
	var probe struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.EventType
}

type image struct {
	CoverType string `json:"coverType"`
	URL       string `json:"url"`
	RemoteURL string `json:"remoteUrl"`
}

// pickImage returns the remote URL for the first image of the given
// cover type, falling back to the local URL when no remote is set.
func pickImage(images []image, coverType string) string {
	for _, img := range images {
		if img.CoverType != coverType {
			continue
		}
		if img.RemoteURL != "" {
			return img.RemoteURL
		}
		return img.URL
	}
	return ""
}

// qualityLabel joins a quality name with any custom format names, e.g.
// "WEBDL-1080p (x265)". An empty quality yields an empty label even when
// formats are present.
func qualityLabel(name string, formats []string) string {
	if name == "" {
		return ""
	}
	joined := ""
	for _, f := range formats {
		if f == "" {
			continue
		}
		if joined != "" {
			joined += ", "
		}
		joined += f
	}
	if joined != "" {
		name += " (" + joined + ")"
	}
	return name
}
