package users

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/config"
)

type fakeDirectory struct {
	users      []OverseerrUser
	discordIDs map[int]string
	usersErr   error
}

func (f *fakeDirectory) GetUsers(ctx context.Context) ([]OverseerrUser, error) {
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return f.users, nil
}

func (f *fakeDirectory) GetDiscordID(ctx context.Context, userID int) (string, error) {
	id, ok := f.discordIDs[userID]
	if !ok {
		return "", errors.New("no settings")
	}
	return id, nil
}

func TestResolveMentionsFromConfig(t *testing.T) {
	cfg := config.OverseerrConfig{
		PlexToDiscord: map[string]string{"Alice": "111", "bob": "222"},
	}
	svc := NewService(nil, cfg, zerolog.Nop())

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"exact match", []string{"alice"}, []string{"111"}},
		{"case insensitive", []string{"ALICE"}, []string{"111"}},
		{"username inside longer tag", []string{"requested-by-bob"}, []string{"222"}},
		{"multiple tags", []string{"alice", "bob"}, []string{"111", "222"}},
		{"duplicate resolution", []string{"alice", "alice-4k"}, []string{"111"}},
		{"no match", []string{"charlie"}, nil},
		{"empty tags", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.ResolveMentions(tt.tags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveMentions(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestSyncMergesOverseerrUsers(t *testing.T) {
	dir := &fakeDirectory{
		users: []OverseerrUser{
			{ID: 1, PlexUsername: "Carol"},
			{ID: 2, PlexUsername: "dave"},
			{ID: 3, PlexUsername: ""},  // no plex account
			{ID: 4, PlexUsername: "erin"}, // settings unreadable
		},
		discordIDs: map[int]string{1: "333", 2: ""},
	}
	svc := NewService(dir, config.OverseerrConfig{}, zerolog.Nop())

	if err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := svc.ResolveMentions([]string{"carol"}); !reflect.DeepEqual(got, []string{"333"}) {
		t.Errorf("carol not resolved after sync: %v", got)
	}
	// dave has no discord id configured, erin's settings errored.
	if got := svc.ResolveMentions([]string{"dave", "erin"}); got != nil {
		t.Errorf("unmappable users resolved: %v", got)
	}
	if svc.LastSync().IsZero() {
		t.Errorf("LastSync not recorded")
	}
}

func TestConfigOverridesSyncedMapping(t *testing.T) {
	dir := &fakeDirectory{
		users:      []OverseerrUser{{ID: 1, PlexUsername: "alice"}},
		discordIDs: map[int]string{1: "999"},
	}
	cfg := config.OverseerrConfig{PlexToDiscord: map[string]string{"alice": "111"}}
	svc := NewService(dir, cfg, zerolog.Nop())

	if err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := svc.ResolveMentions([]string{"alice"}); !reflect.DeepEqual(got, []string{"111"}) {
		t.Errorf("config mapping should win, got %v", got)
	}

	mappings := svc.Mappings()
	if len(mappings) != 1 || !mappings[0].FromConfig {
		t.Errorf("mapping not marked as config sourced: %+v", mappings)
	}
}

func TestSyncFailureKeepsOldMappings(t *testing.T) {
	dir := &fakeDirectory{
		users:      []OverseerrUser{{ID: 1, PlexUsername: "alice"}},
		discordIDs: map[int]string{1: "111"},
	}
	svc := NewService(dir, config.OverseerrConfig{}, zerolog.Nop())
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	dir.usersErr = errors.New("overseerr down")
	if err := svc.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}

	if got := svc.ResolveMentions([]string{"alice"}); !reflect.DeepEqual(got, []string{"111"}) {
		t.Errorf("failed sync wiped mappings: %v", got)
	}
}
