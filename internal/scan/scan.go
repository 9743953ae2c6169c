// Package scan turns flushed media batches and manual requests into Plex
// library refreshes, collapsing concurrent requests for the same target
// into a single run.
package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/aggregator"
	"github.com/plexbot/plexbot/internal/config"
	"github.com/plexbot/plexbot/internal/plex"
	"github.com/plexbot/plexbot/internal/status"
	"github.com/plexbot/plexbot/internal/webhook"
)

// targetAll scans every library section.
const targetAll = "all"

// Library is the subset of the Plex client the coordinator needs.
type Library interface {
	GetLibrarySections(ctx context.Context) ([]plex.LibrarySection, error)
	RefreshSection(ctx context.Context, sectionKey int) error
	RefreshPath(ctx context.Context, sectionKey int, path string) error
}

// Recorder tracks the lifecycle of each scan run.
type Recorder interface {
	AddScan(rec status.ScanRecord) string
	UpdateScan(rec status.ScanRecord) bool
}

type inflight struct {
	folded int
}

// Coordinator resolves scan targets and executes refreshes. A batch for
// a target already being scanned folds into the running scan instead of
// starting another.
type Coordinator struct {
	client   Library
	cfg      config.PlexConfig
	recorder Recorder
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*inflight
	wg      sync.WaitGroup
}

// New creates a scan coordinator.
func New(client Library, cfg config.PlexConfig, recorder Recorder, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		client:   client,
		cfg:      cfg,
		recorder: recorder,
		log:      log.With().Str("component", "scan").Logger(),
		pending:  make(map[string]*inflight),
	}
}

// Consume implements aggregator.Consumer. Each flushed batch requests
// one scan of the library resolved for its source.
func (c *Coordinator) Consume(batch aggregator.Batch) {
	if !c.cfg.ScanEnabled {
		c.log.Debug().Str("title", batch.Title).Msg("Plex scanning disabled, skipping batch")
		return
	}
	c.request(c.resolveTarget(batch.Source), status.TriggerBatch)
}

// resolveTarget picks the library to scan for a source. A pinned library
// beats the per-type mapping; an empty mapping falls back to scanning
// every section.
func (c *Coordinator) resolveTarget(source webhook.Source) string {
	if c.cfg.Library != "" {
		return c.cfg.Library
	}
	switch source {
	case webhook.SourceSonarr:
		if c.cfg.ShowLibrary != "" {
			return c.cfg.ShowLibrary
		}
	case webhook.SourceRadarr:
		if c.cfg.MovieLibrary != "" {
			return c.cfg.MovieLibrary
		}
	case webhook.SourceReadarr:
		if c.cfg.BookLibrary != "" {
			return c.cfg.BookLibrary
		}
	}
	return targetAll
}

// request starts a scan for target unless one is already running, in
// which case the new request folds into it.
func (c *Coordinator) request(target string, trigger status.Trigger) {
	c.mu.Lock()
	if inf, running := c.pending[target]; running {
		inf.folded++
		c.mu.Unlock()
		c.log.Debug().Str("target", target).Msg("Scan already in flight, folding request")
		return
	}
	inf := &inflight{}
	c.pending[target] = inf
	c.mu.Unlock()

	// Record the run as pending up front so the dashboard shows it while
	// a long all-library sweep is still in flight.
	rec := status.ScanRecord{
		Target:    target,
		Trigger:   trigger,
		Status:    status.ScanPending,
		StartedAt: time.Now(),
	}
	rec.ID = c.recorder.AddScan(rec)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(rec, inf)
	}()
}

func (c *Coordinator) run(rec status.ScanRecord, inf *inflight) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sections, err := c.execute(ctx, rec.Target)

	c.mu.Lock()
	rec.Folded = inf.folded
	delete(c.pending, rec.Target)
	c.mu.Unlock()

	rec.Sections = sections
	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Status = status.ScanFailed
		rec.Error = err.Error()
		c.log.Error().Err(err).Str("target", rec.Target).Msg("Plex scan failed")
	} else {
		rec.Status = status.ScanCompleted
		c.log.Info().Str("target", rec.Target).Int("sections", sections).Int("folded", rec.Folded).Msg("Plex scan completed")
	}
	c.recorder.UpdateScan(rec)
}

// execute performs the refresh and returns how many sections were hit.
func (c *Coordinator) execute(ctx context.Context, target string) (int, error) {
	sections, err := c.client.GetLibrarySections(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list library sections: %w", err)
	}

	if target == targetAll {
		refreshed := 0
		for _, sec := range sections {
			if err := c.client.RefreshSection(ctx, sec.Key); err != nil {
				return refreshed, fmt.Errorf("failed to refresh section %q: %w", sec.Title, err)
			}
			refreshed++
		}
		return refreshed, nil
	}

	sec, err := findSection(sections, target)
	if err != nil {
		return 0, err
	}
	if err := c.client.RefreshSection(ctx, sec.Key); err != nil {
		return 0, fmt.Errorf("failed to refresh section %q: %w", sec.Title, err)
	}
	return 1, nil
}

func findSection(sections []plex.LibrarySection, name string) (plex.LibrarySection, error) {
	for _, sec := range sections {
		if strings.EqualFold(sec.Title, name) {
			return sec, nil
		}
	}
	return plex.LibrarySection{}, fmt.Errorf("no library section named %q", name)
}

// ScanAll triggers a manual scan of every library section.
func (c *Coordinator) ScanAll() {
	c.request(targetAll, status.TriggerManual)
}

// ScanLibrary triggers a manual scan of one library by name.
func (c *Coordinator) ScanLibrary(name string) {
	c.request(name, status.TriggerManual)
}

// ScanItem refreshes a specific path inside a library section. Runs
// synchronously since callers want the immediate result.
func (c *Coordinator) ScanItem(ctx context.Context, library, path string) error {
	started := time.Now()
	sections, err := c.client.GetLibrarySections(ctx)
	var sec plex.LibrarySection
	if err == nil {
		sec, err = findSection(sections, library)
	}
	if err == nil {
		err = c.client.RefreshPath(ctx, sec.Key, path)
	}

	rec := status.ScanRecord{
		Target:     library + ":" + path,
		Trigger:    status.TriggerItem,
		Status:     status.ScanCompleted,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		rec.Status = status.ScanFailed
		rec.Error = err.Error()
	} else {
		rec.Sections = 1
	}
	c.recorder.AddScan(rec)
	return err
}

// Wait blocks until all in-flight scans finish. Used during shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
