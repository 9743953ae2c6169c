package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

type readarrPayload struct {
	EventType string `json:"eventType"`
	Author    struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
	Book struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		ReleaseDate string `json:"releaseDate"`
	} `json:"book"`
	BookFiles []struct {
		Quality string `json:"quality"`
	} `json:"bookFiles"`
	Release struct {
		Quality       string   `json:"quality"`
		CustomFormats []string `json:"customFormats"`
	} `json:"release"`
}

func parseReadarr(body []byte, now time.Time) ([]MediaEvent, error) {
	var p readarrPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed("readarr payload is not valid JSON: %v", err)
	}
	if p.EventType != eventDownload {
		return nil, ErrIgnoredEvent
	}
	if p.Book.Title == "" {
		return nil, malformed("readarr payload missing book title")
	}

	title := p.Book.Title
	if p.Author.Name != "" {
		title = fmt.Sprintf("%s - %s", p.Author.Name, p.Book.Title)
	}

	q := p.Release.Quality
	if len(p.BookFiles) > 0 && p.BookFiles[0].Quality != "" {
		q = p.BookFiles[0].Quality
	}

	year := 0
	if len(p.Book.ReleaseDate) >= 4 {
		var y int
		if _, err := fmt.Sscanf(p.Book.ReleaseDate[:4], "%d", &y); err == nil {
			year = y
		}
	}

	return []MediaEvent{{
		Source:     SourceReadarr,
		MediaKey:   fmt.Sprintf("readarr-book-%d", p.Book.ID),
		Title:      title,
		Year:       year,
		Quality:    qualityLabel(q, p.Release.CustomFormats),
		ReceivedAt: now,
	}}, nil
}
