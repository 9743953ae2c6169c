// Package aggregator debounces normalized media events into per-title
// batches. Rapid event bursts for the same title collapse into a single
// batch that flushes once the title has been quiet for the debounce
// window.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/webhook"
)

// Batch is a flushed set of events for one title, handed to consumers.
type Batch struct {
	Source    webhook.Source
	MediaKey  string
	Title     string
	Year      int
	PosterURL string
	FanartURL string
	Quality   string
	Tags      []string
	// Episodes is sorted by (season, number) and deduplicated. Empty for
	// movies and books.
	Episodes  []webhook.Episode
	FirstSeen time.Time
	LastSeen  time.Time
}

// EventCount is the number of distinct items in the batch, counting a
// movie or book batch as one.
func (b *Batch) EventCount() int {
	if len(b.Episodes) == 0 {
		return 1
	}
	return len(b.Episodes)
}

// Consumer handles a flushed batch. Consumers run independently; one
// failing does not affect the others.
type Consumer interface {
	Consume(batch Batch)
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(batch Batch)

func (f ConsumerFunc) Consume(batch Batch) { f(batch) }

type pendingBatch struct {
	batch      Batch
	seen       map[[2]int]int // (season, number) -> index into Episodes
	timer      *time.Timer
	generation uint64
}

// Aggregator collects events per media key and flushes a batch after the
// key has been quiet for the debounce window.
type Aggregator struct {
	window    time.Duration
	consumers []Consumer
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingBatch
	stopped bool
}

// New creates an aggregator flushing to the given consumers after window
// of quiet per title.
func New(window time.Duration, log zerolog.Logger, consumers ...Consumer) *Aggregator {
	return &Aggregator{
		window:    window,
		consumers: consumers,
		log:       log.With().Str("component", "aggregator").Logger(),
		pending:   make(map[string]*pendingBatch),
	}
}

// Ingest merges an event into its pending batch, creating one if needed,
// and resets that batch's debounce timer.
func (a *Aggregator) Ingest(event webhook.MediaEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	pb, ok := a.pending[event.MediaKey]
	if !ok {
		pb = &pendingBatch{
			batch: Batch{
				Source:    event.Source,
				MediaKey:  event.MediaKey,
				FirstSeen: event.ReceivedAt,
			},
			seen: make(map[[2]int]int),
		}
		a.pending[event.MediaKey] = pb
	}

	a.merge(pb, event)

	// Reset or start the debounce timer. The generation counter makes a
	// timer that already fired but lost the lock race a no-op.
	pb.generation++
	gen := pb.generation
	if pb.timer != nil {
		pb.timer.Stop()
	}
	key := event.MediaKey
	pb.timer = time.AfterFunc(a.window, func() {
		a.flush(key, gen)
	})

	a.log.Debug().
		Str("mediaKey", event.MediaKey).
		Str("title", event.Title).
		Int("batchSize", pb.batch.EventCount()).
		Msg("Event merged into pending batch")
}

// merge folds an event into a pending batch. Caller holds the lock.
// Later events refresh batch-level metadata, so the last configured
// value wins when a burst carries conflicting titles or artwork.
func (a *Aggregator) merge(pb *pendingBatch, event webhook.MediaEvent) {
	b := &pb.batch
	if event.Title != "" {
		b.Title = event.Title
	}
	if event.Year != 0 {
		b.Year = event.Year
	}
	if event.PosterURL != "" {
		b.PosterURL = event.PosterURL
	}
	if event.FanartURL != "" {
		b.FanartURL = event.FanartURL
	}
	if event.Quality != "" {
		b.Quality = event.Quality
	}
	if len(event.Tags) > 0 {
		b.Tags = event.Tags
	}
	if event.ReceivedAt.After(b.LastSeen) {
		b.LastSeen = event.ReceivedAt
	}

	if event.Episode == nil {
		return
	}

	ep := *event.Episode
	id := [2]int{ep.Season, ep.Number}
	if idx, dup := pb.seen[id]; dup {
		// Re-import of the same episode. Keep the richer record so a
		// retry carrying the episode title or overview is not lost.
		existing := &b.Episodes[idx]
		if ep.Title != "" {
			existing.Title = ep.Title
		}
		if ep.AirDate != "" {
			existing.AirDate = ep.AirDate
		}
		if ep.Overview != "" {
			existing.Overview = ep.Overview
		}
		return
	}
	pb.seen[id] = len(b.Episodes)
	b.Episodes = append(b.Episodes, ep)
}

// flush removes the batch for key and fans it out to all consumers. A
// stale generation means the timer was superseded by a newer event and
// the fire is discarded.
func (a *Aggregator) flush(key string, gen uint64) {
	a.mu.Lock()
	pb, ok := a.pending[key]
	if !ok || pb.generation != gen {
		a.mu.Unlock()
		a.log.Debug().Str("mediaKey", key).Msg("Discarding superseded flush timer")
		return
	}
	delete(a.pending, key)
	a.mu.Unlock()

	a.deliver(pb.batch)
}

func (a *Aggregator) deliver(batch Batch) {
	sort.Slice(batch.Episodes, func(i, j int) bool {
		if batch.Episodes[i].Season != batch.Episodes[j].Season {
			return batch.Episodes[i].Season < batch.Episodes[j].Season
		}
		return batch.Episodes[i].Number < batch.Episodes[j].Number
	})

	a.log.Info().
		Str("mediaKey", batch.MediaKey).
		Str("title", batch.Title).
		Int("items", batch.EventCount()).
		Msg("Flushing batch")

	for _, c := range a.consumers {
		c.Consume(batch)
	}
}

// PendingCount returns the number of titles currently waiting to flush.
func (a *Aggregator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels all timers and flushes every pending batch immediately so
// queued events are not lost on shutdown.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	remaining := make([]Batch, 0, len(a.pending))
	for key, pb := range a.pending {
		if pb.timer != nil {
			pb.timer.Stop()
		}
		remaining = append(remaining, pb.batch)
		delete(a.pending, key)
	}
	a.mu.Unlock()

	for _, b := range remaining {
		a.deliver(b)
	}
}
