package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

type radarrPayload struct {
	EventType string `json:"eventType"`
	Movie     struct {
		ID     int64    `json:"id"`
		Title  string   `json:"title"`
		Year   int      `json:"year"`
		Images []image  `json:"images"`
		Tags   []string `json:"tags"`
	} `json:"movie"`
	MovieFile struct {
		Quality string `json:"quality"`
	} `json:"movieFile"`
	Release struct {
		Quality       string   `json:"quality"`
		CustomFormats []string `json:"customFormats"`
	} `json:"release"`
}

func parseRadarr(body []byte, now time.Time) ([]MediaEvent, error) {
	var p radarrPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed("radarr payload is not valid JSON: %v", err)
	}
	if p.EventType != eventDownload {
		return nil, ErrIgnoredEvent
	}
	if p.Movie.Title == "" {
		return nil, malformed("radarr payload missing movie title")
	}

	q := p.MovieFile.Quality
	if q == "" {
		q = p.Release.Quality
	}

	return []MediaEvent{{
		Source:     SourceRadarr,
		MediaKey:   fmt.Sprintf("radarr-movie-%d", p.Movie.ID),
		Title:      p.Movie.Title,
		Year:       p.Movie.Year,
		PosterURL:  pickImage(p.Movie.Images, "poster"),
		FanartURL:  pickImage(p.Movie.Images, "fanart"),
		Quality:    qualityLabel(q, p.Release.CustomFormats),
		Tags:       p.Movie.Tags,
		ReceivedAt: now,
	}}, nil
}
