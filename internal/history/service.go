// Package history persists notification deliveries to SQLite so they
// survive restarts, along with per-user delivery bookkeeping.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/status"
)

// Entry is one persisted notification.
type Entry struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	MediaKey  string    `json:"mediaKey"`
	Title     string    `json:"title"`
	ItemCount int       `json:"itemCount"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// UserCount is the number of notifications delivered to one Discord user.
type UserCount struct {
	DiscordID      string     `json:"discordId"`
	Count          int64      `json:"count"`
	LastNotifiedAt *time.Time `json:"lastNotifiedAt,omitempty"`
}

// Service provides notification history persistence.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Save persists a delivery record and its per-user bookkeeping in one
// transaction.
func (s *Service) Save(ctx context.Context, rec status.NotificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notifications (id, source, media_key, title, item_count, success, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.MediaKey, rec.Title, rec.ItemCount, rec.Success, rec.Error, rec.SentAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	for _, discordID := range rec.Mentions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_notifications (notification_id, discord_id, created_at) VALUES (?, ?, ?)`,
			rec.ID, discordID, rec.SentAt)
		if err != nil {
			return fmt.Errorf("failed to insert user notification: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_notification_counts (discord_id, count, last_notified_at) VALUES (?, 1, ?)
			 ON CONFLICT(discord_id) DO UPDATE SET count = count + 1, last_notified_at = excluded.last_notified_at`,
			discordID, rec.SentAt)
		if err != nil {
			return fmt.Errorf("failed to update user notification count: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the most recent entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, media_key, title, item_count, success, error, sent_at
		 FROM notifications ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentSince returns entries sent at or after the cutoff, newest first.
func (s *Service) RecentSince(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, media_key, title, item_count, success, error, sent_at
		 FROM notifications WHERE sent_at >= ? ORDER BY sent_at DESC LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentForUser returns recent entries that mentioned a Discord user.
func (s *Service) RecentForUser(ctx context.Context, discordID string, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.source, n.media_key, n.title, n.item_count, n.success, n.error, n.sent_at
		 FROM notifications n
		 JOIN user_notifications un ON un.notification_id = n.id
		 WHERE un.discord_id = ?
		 ORDER BY n.sent_at DESC LIMIT ?`, discordID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query user notifications: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UserCounts returns per-user delivery totals, highest first.
func (s *Service) UserCounts(ctx context.Context) ([]UserCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT discord_id, count, last_notified_at
		 FROM user_notification_counts ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user counts: %w", err)
	}
	defer rows.Close()

	var counts []UserCount
	for rows.Next() {
		var uc UserCount
		var last sql.NullTime
		if err := rows.Scan(&uc.DiscordID, &uc.Count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan user count: %w", err)
		}
		if last.Valid {
			uc.LastNotifiedAt = &last.Time
		}
		counts = append(counts, uc)
	}
	return counts, rows.Err()
}

// Cleanup deletes entries older than the retention period. User counts
// are totals and are left untouched.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE sent_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Cleaned up old notification history")
	}
	return deleted, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Source, &e.MediaKey, &e.Title, &e.ItemCount, &e.Success, &e.Error, &e.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
