// Package users maintains the Plex username to Discord ID mapping used
// to ping users when their tagged media arrives. Mappings come from the
// static configuration and from periodic Overseerr sync.
package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/config"
)

// Directory is the Overseerr surface the service needs.
type Directory interface {
	GetUsers(ctx context.Context) ([]OverseerrUser, error)
	GetDiscordID(ctx context.Context, userID int) (string, error)
}

// Mapping is one resolved Plex to Discord link.
type Mapping struct {
	PlexUsername string `json:"plexUsername"`
	DiscordID    string `json:"discordId"`
	FromConfig   bool   `json:"fromConfig"`
}

// Service resolves media tags to Discord user IDs.
type Service struct {
	directory Directory
	cfg       config.OverseerrConfig
	log       zerolog.Logger

	mu         sync.RWMutex
	byPlexUser map[string]string
	synced     map[string]string
	lastSync   time.Time
}

// NewService creates the user mapping service. directory may be nil when
// Overseerr is not configured; config mappings still apply.
func NewService(directory Directory, cfg config.OverseerrConfig, log zerolog.Logger) *Service {
	s := &Service{
		directory: directory,
		cfg:       cfg,
		log:       log.With().Str("component", "users").Logger(),
		synced:    make(map[string]string),
	}
	s.rebuild()
	return s
}

// normalize lowercases and trims a Plex username or tag for matching.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rebuild recomputes the lookup table. Config mappings override synced
// ones for the same username. Caller must not hold the lock.
func (s *Service) rebuild() {
	merged := make(map[string]string)
	s.mu.Lock()
	defer s.mu.Unlock()
	for user, id := range s.synced {
		merged[normalize(user)] = id
	}
	for user, id := range s.cfg.PlexToDiscord {
		merged[normalize(user)] = id
	}
	s.byPlexUser = merged
}

// Sync pulls users from Overseerr and refreshes the mapping table.
func (s *Service) Sync(ctx context.Context) error {
	if s.directory == nil {
		return nil
	}

	overseerrUsers, err := s.directory.GetUsers(ctx)
	if err != nil {
		return err
	}

	synced := make(map[string]string)
	for _, u := range overseerrUsers {
		if u.PlexUsername == "" {
			continue
		}
		discordID, err := s.directory.GetDiscordID(ctx, u.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("plexUsername", u.PlexUsername).Msg("Skipping user without readable notification settings")
			continue
		}
		if discordID == "" {
			continue
		}
		synced[normalize(u.PlexUsername)] = discordID
	}

	s.mu.Lock()
	s.synced = synced
	s.lastSync = time.Now()
	s.mu.Unlock()
	s.rebuild()

	s.log.Info().Int("mapped", len(synced)).Msg("Synced Overseerr user mappings")
	return nil
}

// ResolveMentions returns the Discord IDs of users whose Plex username
// appears in any of the tags. Matching is case-insensitive and allows
// the username to be embedded in a longer tag.
func (s *Service) ResolveMentions(tags []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, tag := range tags {
		nt := normalize(tag)
		if nt == "" {
			continue
		}
		for plexUser, discordID := range s.byPlexUser {
			if !strings.Contains(nt, plexUser) {
				continue
			}
			if !seen[discordID] {
				seen[discordID] = true
				ids = append(ids, discordID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// Mappings returns the current table, sorted by Plex username.
func (s *Service) Mappings() []Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configUsers := make(map[string]bool, len(s.cfg.PlexToDiscord))
	for user := range s.cfg.PlexToDiscord {
		configUsers[normalize(user)] = true
	}

	out := make([]Mapping, 0, len(s.byPlexUser))
	for user, id := range s.byPlexUser {
		out = append(out, Mapping{
			PlexUsername: user,
			DiscordID:    id,
			FromConfig:   configUsers[user],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlexUsername < out[j].PlexUsername })
	return out
}

// LastSync returns when the last successful Overseerr sync completed.
func (s *Service) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}
