// Package notify renders flushed media batches into Discord embeds and
// delivers them through per-source webhooks.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/aggregator"
	"github.com/plexbot/plexbot/internal/config"
	"github.com/plexbot/plexbot/internal/notify/discord"
	"github.com/plexbot/plexbot/internal/status"
	"github.com/plexbot/plexbot/internal/webhook"
)

const (
	// Discord caps embed descriptions at 4096 characters; an overview
	// field value at 1024. Truncation leaves room for the ellipsis.
	maxOverviewLen = 1020
	// Episode lines beyond this collapse into a "+N more" suffix.
	maxEpisodeLines = 3

	botUsername = "PlexBot"
	sendTimeout = 15 * time.Second
)

// Webhook delivers a payload to a Discord webhook URL.
type Webhook interface {
	Send(ctx context.Context, webhookURL string, payload discord.WebhookPayload) error
}

// MentionResolver maps media tags to Discord user IDs to ping.
type MentionResolver interface {
	ResolveMentions(tags []string) []string
}

// Recorder tracks delivery attempts for the dashboard.
type Recorder interface {
	AddNotification(rec status.NotificationRecord) string
}

// Archiver persists delivery records beyond the dashboard window.
type Archiver interface {
	Save(ctx context.Context, rec status.NotificationRecord) error
}

// Dispatcher consumes flushed batches and sends one Discord message per
// batch.
type Dispatcher struct {
	sender   Webhook
	cfg      config.DiscordConfig
	mentions MentionResolver
	recorder Recorder
	archiver Archiver
	log      zerolog.Logger
}

// New creates a dispatcher. mentions and archiver may be nil.
func New(sender Webhook, cfg config.DiscordConfig, mentions MentionResolver, recorder Recorder, archiver Archiver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		cfg:      cfg,
		mentions: mentions,
		recorder: recorder,
		archiver: archiver,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Consume implements aggregator.Consumer.
func (d *Dispatcher) Consume(batch aggregator.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	payload, mentioned := d.buildPayload(batch)

	rec := status.NotificationRecord{
		Source:    string(batch.Source),
		MediaKey:  batch.MediaKey,
		Title:     batch.Title,
		ItemCount: batch.EventCount(),
		Mentions:  mentioned,
		SentAt:    time.Now(),
	}

	url := d.cfg.WebhookURL(string(batch.Source))
	if url == "" {
		rec.Error = "no discord webhook configured for source"
		d.log.Warn().Str("source", string(batch.Source)).Msg("No Discord webhook configured, dropping notification")
	} else if err := d.sender.Send(ctx, url, payload); err != nil {
		rec.Error = err.Error()
		d.log.Error().Err(err).Str("title", batch.Title).Msg("Discord delivery failed")
	} else {
		rec.Success = true
		d.log.Info().Str("title", batch.Title).Int("items", rec.ItemCount).Msg("Discord notification sent")
	}

	d.record(ctx, rec)
}

func (d *Dispatcher) record(ctx context.Context, rec status.NotificationRecord) {
	if d.recorder != nil {
		rec.ID = d.recorder.AddNotification(rec)
	}
	if d.archiver != nil {
		if err := d.archiver.Save(ctx, rec); err != nil {
			d.log.Error().Err(err).Msg("Failed to archive notification")
		}
	}
}

// buildPayload renders a batch into a webhook payload and returns the
// Discord user IDs mentioned in its content.
func (d *Dispatcher) buildPayload(batch aggregator.Batch) (discord.WebhookPayload, []string) {
	var embed discord.Embed
	switch {
	case len(batch.Episodes) == 1:
		embed = d.singleEpisodeEmbed(batch)
	case len(batch.Episodes) > 1:
		embed = d.multiEpisodeEmbed(batch)
	default:
		embed = d.itemEmbed(batch)
	}
	embed.Color = colorFor(batch.Source)
	embed.Timestamp = time.Now().UTC().Format(time.RFC3339)

	var mentioned []string
	content := ""
	if d.mentions != nil {
		mentioned = d.mentions.ResolveMentions(batch.Tags)
		parts := make([]string, len(mentioned))
		for i, id := range mentioned {
			parts[i] = fmt.Sprintf("<@%s>", id)
		}
		content = strings.Join(parts, " ")
	}

	return discord.WebhookPayload{
		Username:  d.username(),
		AvatarURL: d.cfg.AvatarURL,
		Content:   content,
		Embeds:    []discord.Embed{embed},
	}, mentioned
}

// singleEpisodeEmbed carries full episode detail.
func (d *Dispatcher) singleEpisodeEmbed(batch aggregator.Batch) discord.Embed {
	ep := batch.Episodes[0]

	embed := discord.Embed{
		Title:       fmt.Sprintf("%s - %s", titleWithYear(batch), episodeLabel(ep)),
		Description: truncate(ep.Overview, maxOverviewLen),
	}
	if batch.Quality != "" {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Quality", Value: batch.Quality, Inline: true})
	}
	if ep.AirDate != "" {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Air Date", Value: ep.AirDate, Inline: true})
	}
	if batch.PosterURL != "" {
		embed.Thumbnail = &discord.EmbedImage{URL: batch.PosterURL}
	}
	if batch.FanartURL != "" {
		embed.Image = &discord.EmbedImage{URL: batch.FanartURL}
	}
	return embed
}

// multiEpisodeEmbed lists episodes compactly with a count footer.
func (d *Dispatcher) multiEpisodeEmbed(batch aggregator.Batch) discord.Embed {
	var lines []string
	for i, ep := range batch.Episodes {
		if i == maxEpisodeLines {
			lines = append(lines, fmt.Sprintf("+%d more", len(batch.Episodes)-maxEpisodeLines))
			break
		}
		lines = append(lines, episodeLabel(ep))
	}

	embed := discord.Embed{
		Title:       fmt.Sprintf("%s - %d New Episodes", titleWithYear(batch), len(batch.Episodes)),
		Description: strings.Join(lines, "\n"),
		Footer:      &discord.EmbedFooter{Text: fmt.Sprintf("%d episodes", len(batch.Episodes))},
	}
	if batch.Quality != "" {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Quality", Value: batch.Quality, Inline: true})
	}
	if batch.PosterURL != "" {
		embed.Thumbnail = &discord.EmbedImage{URL: batch.PosterURL}
	}
	return embed
}

// itemEmbed covers movies and books.
func (d *Dispatcher) itemEmbed(batch aggregator.Batch) discord.Embed {
	embed := discord.Embed{
		Title:       titleWithYear(batch),
		Description: "Now available",
	}
	if batch.Quality != "" {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Quality", Value: batch.Quality, Inline: true})
	}
	if batch.PosterURL != "" {
		embed.Thumbnail = &discord.EmbedImage{URL: batch.PosterURL}
	}
	if batch.FanartURL != "" {
		embed.Image = &discord.EmbedImage{URL: batch.FanartURL}
	}
	return embed
}

// SendTest delivers an immediate test embed for a source's webhook.
func (d *Dispatcher) SendTest(source string) error {
	url := d.cfg.WebhookURL(source)
	if url == "" {
		return fmt.Errorf("no discord webhook configured for source %q", source)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	payload := discord.WebhookPayload{
		Username: d.username(),
		Embeds: []discord.Embed{{
			Title:       "PlexBot Test Notification",
			Description: fmt.Sprintf("Webhook connection from %s is working.", source),
			Color:       discord.ColorInfo,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	return d.sender.Send(ctx, url, payload)
}

func (d *Dispatcher) username() string {
	if d.cfg.Username != "" {
		return d.cfg.Username
	}
	return botUsername
}

func episodeLabel(ep webhook.Episode) string {
	label := fmt.Sprintf("S%02dE%02d", ep.Season, ep.Number)
	if ep.Title != "" {
		label += " - " + ep.Title
	}
	return label
}

func titleWithYear(batch aggregator.Batch) string {
	if batch.Year > 0 {
		return fmt.Sprintf("%s (%d)", batch.Title, batch.Year)
	}
	return batch.Title
}

func colorFor(source webhook.Source) int {
	switch source {
	case webhook.SourceSonarr:
		return discord.ColorSonarr
	case webhook.SourceRadarr:
		return discord.ColorRadarr
	case webhook.SourceReadarr:
		return discord.ColorReadarr
	}
	return discord.ColorDefault
}

// truncate shortens s to at most maxLen bytes plus an ellipsis, backing
// up so the cut never splits a multibyte rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
