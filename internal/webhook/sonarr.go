package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

type sonarrPayload struct {
	EventType string `json:"eventType"`
	Series    struct {
		ID     int64    `json:"id"`
		Title  string   `json:"title"`
		Year   int      `json:"year"`
		Images []image  `json:"images"`
		Tags   []string `json:"tags"`
	} `json:"series"`
	Episodes []struct {
		SeasonNumber  int    `json:"seasonNumber"`
		EpisodeNumber int    `json:"episodeNumber"`
		Title         string `json:"title"`
		Overview      string `json:"overview"`
		AirDateUtc    string `json:"airDateUtc"`
	} `json:"episodes"`
	EpisodeFile  episodeFile   `json:"episodeFile"`
	EpisodeFiles []episodeFile `json:"episodeFiles"`
	Release      struct {
		Quality       string   `json:"quality"`
		CustomFormats []string `json:"customFormats"`
	} `json:"release"`
}

type episodeFile struct {
	Quality       string   `json:"quality"`
	CustomFormats []string `json:"customFormats"`
}

func parseSonarr(body []byte, now time.Time) ([]MediaEvent, error) {
	var p sonarrPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed("sonarr payload is not valid JSON: %v", err)
	}
	if p.EventType != eventDownload {
		return nil, ErrIgnoredEvent
	}
	if p.Series.Title == "" {
		return nil, malformed("sonarr payload missing series title")
	}
	if len(p.Episodes) == 0 {
		return nil, malformed("sonarr Download payload carries no episodes")
	}
	for _, ep := range p.Episodes {
		if ep.SeasonNumber < 1 || ep.EpisodeNumber < 1 {
			return nil, malformed("sonarr episode numbering invalid: season %d episode %d", ep.SeasonNumber, ep.EpisodeNumber)
		}
	}

	// Imported file quality beats the grabbed release quality when both
	// are present; the file reflects what actually landed on disk. Season
	// packs report a file list, single imports a single file.
	file := p.EpisodeFile
	if file.Quality == "" && len(p.EpisodeFiles) > 0 {
		file = p.EpisodeFiles[0]
	}
	q := file.Quality
	if q == "" {
		q = p.Release.Quality
	}
	formats := file.CustomFormats
	if len(formats) == 0 {
		formats = p.Release.CustomFormats
	}
	label := qualityLabel(q, formats)

	key := fmt.Sprintf("sonarr-series-%d", p.Series.ID)
	poster := pickImage(p.Series.Images, "poster")
	fanart := pickImage(p.Series.Images, "fanart")

	events := make([]MediaEvent, 0, len(p.Episodes))
	for _, ep := range p.Episodes {
		events = append(events, MediaEvent{
			Source:    SourceSonarr,
			MediaKey:  key,
			Title:     p.Series.Title,
			Year:      p.Series.Year,
			PosterURL: poster,
			FanartURL: fanart,
			Episode: &Episode{
				Season:   ep.SeasonNumber,
				Number:   ep.EpisodeNumber,
				Title:    ep.Title,
				AirDate:  airDate(ep.AirDateUtc),
				Overview: ep.Overview,
			},
			Quality:    label,
			Tags:       p.Series.Tags,
			ReceivedAt: now,
		})
	}
	return events, nil
}

// airDate trims a UTC timestamp down to its date component.
func airDate(utc string) string {
	if len(utc) >= 10 {
		if _, err := time.Parse("2006-01-02", utc[:10]); err == nil {
			return utc[:10]
		}
	}
	return utc
}
