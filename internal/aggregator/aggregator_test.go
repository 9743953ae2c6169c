package aggregator

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/webhook"
)

type collector struct {
	mu      sync.Mutex
	batches []Batch
}

func (c *collector) Consume(b Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *collector) all() []Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

func (c *collector) waitFor(t *testing.T, n int, timeout time.Duration) []Batch {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := c.all(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d batches, have %d", n, len(c.all()))
	return nil
}

func episodeEvent(key string, season, number int, title string) webhook.MediaEvent {
	return webhook.MediaEvent{
		Source:   webhook.SourceSonarr,
		MediaKey: key,
		Title:    title,
		Episode:  &webhook.Episode{Season: season, Number: number},
	}
}

func TestBurstCollapsesToOneBatch(t *testing.T) {
	sink := &collector{}
	agg := New(40*time.Millisecond, zerolog.Nop(), sink)
	defer agg.Stop()

	for i := 1; i <= 5; i++ {
		agg.Ingest(episodeEvent("sonarr-series-1", 1, i, "Andor"))
	}

	batches := sink.waitFor(t, 1, 2*time.Second)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	b := batches[0]
	if len(b.Episodes) != 5 {
		t.Fatalf("expected 5 episodes, got %d", len(b.Episodes))
	}
	if agg.PendingCount() != 0 {
		t.Errorf("pending batch not removed after flush")
	}
}

func TestDistinctTitlesFlushIndependently(t *testing.T) {
	sink := &collector{}
	agg := New(30*time.Millisecond, zerolog.Nop(), sink)
	defer agg.Stop()

	agg.Ingest(episodeEvent("sonarr-series-1", 1, 1, "Andor"))
	agg.Ingest(webhook.MediaEvent{Source: webhook.SourceRadarr, MediaKey: "radarr-movie-2", Title: "Dune"})

	batches := sink.waitFor(t, 2, 2*time.Second)
	keys := map[string]bool{}
	for _, b := range batches {
		keys[b.MediaKey] = true
	}
	if !keys["sonarr-series-1"] || !keys["radarr-movie-2"] {
		t.Errorf("expected both media keys flushed, got %v", keys)
	}
}

func TestDuplicateEpisodeUpgradesMetadata(t *testing.T) {
	sink := &collector{}
	agg := New(time.Hour, zerolog.Nop(), sink)
	defer agg.Stop()

	agg.Ingest(episodeEvent("k", 2, 3, "Severance"))
	ev := episodeEvent("k", 2, 3, "Severance")
	ev.Episode.Title = "Who Is Alive?"
	ev.Episode.Overview = "Mark digs deeper."
	agg.Ingest(ev)

	agg.Stop()
	batches := sink.all()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	eps := batches[0].Episodes
	if len(eps) != 1 {
		t.Fatalf("duplicate episode not deduplicated, got %d episodes", len(eps))
	}
	if eps[0].Title != "Who Is Alive?" || eps[0].Overview == "" {
		t.Errorf("richer duplicate did not upgrade episode metadata: %+v", eps[0])
	}
}

func TestEpisodesSortedOnFlush(t *testing.T) {
	sink := &collector{}
	agg := New(time.Hour, zerolog.Nop(), sink)

	agg.Ingest(episodeEvent("k", 2, 1, "Show"))
	agg.Ingest(episodeEvent("k", 1, 9, "Show"))
	agg.Ingest(episodeEvent("k", 1, 2, "Show"))
	agg.Stop()

	eps := sink.all()[0].Episodes
	want := [][2]int{{1, 2}, {1, 9}, {2, 1}}
	for i, w := range want {
		if eps[i].Season != w[0] || eps[i].Number != w[1] {
			t.Fatalf("episode %d = S%dE%d, want S%dE%d", i, eps[i].Season, eps[i].Number, w[0], w[1])
		}
	}
}

func TestLaterEventRefreshesBatchMetadata(t *testing.T) {
	sink := &collector{}
	agg := New(time.Hour, zerolog.Nop(), sink)

	first := episodeEvent("k", 1, 1, "Old Title")
	first.Quality = "HDTV-720p"
	agg.Ingest(first)

	second := episodeEvent("k", 1, 2, "New Title")
	second.Quality = "WEBDL-1080p"
	second.PosterURL = "https://img/p.jpg"
	agg.Ingest(second)

	agg.Stop()
	b := sink.all()[0]
	if b.Title != "New Title" {
		t.Errorf("Title = %q, want the latest value", b.Title)
	}
	if b.Quality != "WEBDL-1080p" {
		t.Errorf("Quality = %q, want the latest value", b.Quality)
	}
	if b.PosterURL != "https://img/p.jpg" {
		t.Errorf("PosterURL not carried from later event")
	}
}

func TestStaleTimerFireIsNoop(t *testing.T) {
	sink := &collector{}
	agg := New(time.Hour, zerolog.Nop(), sink)
	defer agg.Stop()

	agg.Ingest(episodeEvent("k", 1, 1, "Show"))
	agg.Ingest(episodeEvent("k", 1, 2, "Show"))

	// Fire with the first generation, as a timer that lost the stop race
	// would. The batch must survive untouched.
	agg.flush("k", 1)
	if agg.PendingCount() != 1 {
		t.Fatalf("stale timer fire flushed the batch")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("stale timer fire delivered a batch")
	}

	// The current generation flushes normally.
	agg.flush("k", 2)
	if len(sink.all()) != 1 {
		t.Fatalf("current generation did not flush")
	}
}

func TestConsumersAllReceiveBatch(t *testing.T) {
	a := &collector{}
	b := &collector{}
	agg := New(time.Hour, zerolog.Nop(), a, b)

	agg.Ingest(episodeEvent("k", 1, 1, "Show"))
	agg.Stop()

	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Errorf("fan-out incomplete: %d / %d", len(a.all()), len(b.all()))
	}
}

func TestStopFlushesPendingAndRejectsNewEvents(t *testing.T) {
	sink := &collector{}
	agg := New(time.Hour, zerolog.Nop(), sink)

	agg.Ingest(episodeEvent("k", 1, 1, "Show"))
	agg.Stop()

	if len(sink.all()) != 1 {
		t.Fatalf("Stop did not flush pending batches")
	}

	agg.Ingest(episodeEvent("k2", 1, 1, "Other"))
	if agg.PendingCount() != 0 {
		t.Errorf("events accepted after Stop")
	}
}
