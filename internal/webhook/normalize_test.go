package webhook

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeSonarrMultiEpisode(t *testing.T) {
	body := []byte(`{
		"eventType": "Download",
		"series": {
			"id": 42,
			"title": "Severance",
			"year": 2022,
			"images": [
				{"coverType": "poster", "remoteUrl": "https://img/poster.jpg"},
				{"coverType": "fanart", "remoteUrl": "https://img/fanart.jpg"}
			],
			"tags": ["alice", "bob"]
		},
		"episodes": [
			{"seasonNumber": 2, "episodeNumber": 3, "title": "Who Is Alive?", "overview": "Mark digs deeper.", "airDateUtc": "2025-01-31T02:00:00Z"},
			{"seasonNumber": 2, "episodeNumber": 4, "title": "Woe's Hollow", "airDateUtc": "2025-02-07T02:00:00Z"}
		],
		"episodeFile": {"quality": "WEBDL-1080p"},
		"release": {"quality": "HDTV-720p", "customFormats": ["x265"]}
	}`)

	events, err := Normalize(SourceSonarr, body, testNow)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if first.MediaKey != "sonarr-series-42" {
		t.Errorf("MediaKey = %q, want sonarr-series-42", first.MediaKey)
	}
	if first.Title != "Severance" || first.Year != 2022 {
		t.Errorf("unexpected title/year: %q/%d", first.Title, first.Year)
	}
	// File quality wins over release quality; formats still attach.
	if first.Quality != "WEBDL-1080p (x265)" {
		t.Errorf("Quality = %q, want WEBDL-1080p (x265)", first.Quality)
	}
	if first.Episode == nil || first.Episode.Season != 2 || first.Episode.Number != 3 {
		t.Fatalf("unexpected first episode: %+v", first.Episode)
	}
	if first.Episode.AirDate != "2025-01-31" {
		t.Errorf("AirDate = %q, want 2025-01-31", first.Episode.AirDate)
	}
	if first.PosterURL != "https://img/poster.jpg" || first.FanartURL != "https://img/fanart.jpg" {
		t.Errorf("unexpected images: %q / %q", first.PosterURL, first.FanartURL)
	}
	if events[1].MediaKey != first.MediaKey {
		t.Errorf("episodes from one payload should share a media key")
	}
	if events[1].Episode.Number != 4 {
		t.Errorf("payload order not preserved, second episode = %d", events[1].Episode.Number)
	}
}

func TestNormalizeSonarrQualityFallsBackToRelease(t *testing.T) {
	body := []byte(`{
		"eventType": "Download",
		"series": {"id": 1, "title": "Andor"},
		"episodes": [{"seasonNumber": 1, "episodeNumber": 1}],
		"release": {"quality": "Bluray-1080p"}
	}`)

	events, err := Normalize(SourceSonarr, body, testNow)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if events[0].Quality != "Bluray-1080p" {
		t.Errorf("Quality = %q, want Bluray-1080p", events[0].Quality)
	}
}

func TestNormalizeRadarr(t *testing.T) {
	body := []byte(`{
		"eventType": "Download",
		"movie": {
			"id": 7,
			"title": "Dune: Part Two",
			"year": 2024,
			"images": [{"coverType": "poster", "url": "/local/poster.jpg"}]
		},
		"movieFile": {"quality": "Remux-2160p"}
	}`)

	events, err := Normalize(SourceRadarr, body, testNow)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.MediaKey != "radarr-movie-7" {
		t.Errorf("MediaKey = %q", ev.MediaKey)
	}
	if ev.Episode != nil {
		t.Errorf("movie event should have nil episode")
	}
	if ev.Quality != "Remux-2160p" {
		t.Errorf("Quality = %q", ev.Quality)
	}
	// Local URL used when no remote is present.
	if ev.PosterURL != "/local/poster.jpg" {
		t.Errorf("PosterURL = %q", ev.PosterURL)
	}
}

func TestNormalizeReadarr(t *testing.T) {
	body := []byte(`{
		"eventType": "Download",
		"author": {"id": 3, "name": "Ann Leckie"},
		"book": {"id": 9, "title": "Ancillary Justice", "releaseDate": "2013-10-01"},
		"bookFiles": [{"quality": "EPUB"}]
	}`)

	events, err := Normalize(SourceReadarr, body, testNow)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	ev := events[0]
	if ev.Title != "Ann Leckie - Ancillary Justice" {
		t.Errorf("Title = %q", ev.Title)
	}
	if ev.Year != 2013 {
		t.Errorf("Year = %d", ev.Year)
	}
	if ev.Quality != "EPUB" {
		t.Errorf("Quality = %q", ev.Quality)
	}
}

func TestNormalizeIgnoredEventType(t *testing.T) {
	body := []byte(`{"eventType": "Grab", "series": {"id": 1, "title": "Andor"}, "episodes": [{"seasonNumber": 1, "episodeNumber": 1}]}`)

	_, err := Normalize(SourceSonarr, body, testNow)
	if !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		source Source
		body   string
	}{
		{"not json", SourceSonarr, `{{`},
		{"missing series title", SourceSonarr, `{"eventType": "Download", "episodes": [{"seasonNumber": 1, "episodeNumber": 1}]}`},
		{"no episodes", SourceSonarr, `{"eventType": "Download", "series": {"id": 1, "title": "Andor"}}`},
		{"zero episode numbering", SourceSonarr, `{"eventType": "Download", "series": {"id": 7, "title": "Andor"}, "episodes": [{"seasonNumber": 0, "episodeNumber": 0}]}`},
		{"missing episode numbering", SourceSonarr, `{"eventType": "Download", "series": {"id": 7, "title": "Andor"}, "episodes": [{"title": "Pilot"}]}`},
		{"one bad episode taints the batch", SourceSonarr, `{"eventType": "Download", "series": {"id": 7, "title": "Andor"}, "episodes": [{"seasonNumber": 1, "episodeNumber": 1}, {"seasonNumber": 1, "episodeNumber": 0}]}`},
		{"missing movie title", SourceRadarr, `{"eventType": "Download", "movie": {"id": 1}}`},
		{"missing book title", SourceReadarr, `{"eventType": "Download", "author": {"name": "X"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.source, []byte(tt.body), testNow)
			var nerr *NormalizationError
			if !errors.As(err, &nerr) {
				t.Fatalf("expected NormalizationError, got %v", err)
			}
			if nerr.Kind != KindMalformedPayload {
				t.Errorf("Kind = %q, want %q", nerr.Kind, KindMalformedPayload)
			}
		})
	}
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		name     string
		quality  string
		formats  []string
		expected string
	}{
		{"plain", "WEBDL-1080p", nil, "WEBDL-1080p"},
		{"one format", "WEBDL-1080p", []string{"x265"}, "WEBDL-1080p (x265)"},
		{"multiple formats", "Bluray-2160p", []string{"HDR", "Atmos"}, "Bluray-2160p (HDR, Atmos)"},
		{"empty quality hides formats", "", []string{"x265"}, ""},
		{"blank format skipped", "HDTV-720p", []string{""}, "HDTV-720p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := qualityLabel(tt.quality, tt.formats)
			if got != tt.expected {
				t.Errorf("qualityLabel(%q, %v) = %q, want %q", tt.quality, tt.formats, got, tt.expected)
			}
		})
	}
}
