package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOverseerrKey = "overseerr-api-key"

func newOverseerrServer(t *testing.T, users []OverseerrUser, discordIDs map[int]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != testOverseerrKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/api/v1/user" {
			take, _ := strconv.Atoi(r.URL.Query().Get("take"))
			skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
			end := skip + take
			if end > len(users) {
				end = len(users)
			}
			page := users[skip:end]
			json.NewEncoder(w).Encode(map[string]interface{}{
				"pageInfo": map[string]int{
					"pages":   (len(users) + take - 1) / take,
					"page":    skip/take + 1,
					"results": len(users),
				},
				"results": page,
			})
			return
		}

		var userID int
		if n, _ := fmt.Sscanf(r.URL.Path, "/api/v1/user/%d/settings/notifications", &userID); n == 1 {
			json.NewEncoder(w).Encode(map[string]string{"discordId": discordIDs[userID]})
			return
		}

		if r.URL.Path == "/api/v1/status" {
			json.NewEncoder(w).Encode(map[string]string{"version": "1.33.2"})
			return
		}

		http.NotFound(w, r)
	}))
}

func TestOverseerrClient_GetUsers(t *testing.T) {
	all := make([]OverseerrUser, 150)
	for i := range all {
		all[i] = OverseerrUser{ID: i + 1, PlexUsername: fmt.Sprintf("user%d", i+1)}
	}
	server := newOverseerrServer(t, all, nil)
	defer server.Close()

	client := NewOverseerrClient(server.Client(), zerolog.Nop(), server.URL, testOverseerrKey)

	users, err := client.GetUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 150)
	assert.Equal(t, "user1", users[0].PlexUsername)
	assert.Equal(t, 150, users[149].ID)
}

func TestOverseerrClient_GetDiscordID(t *testing.T) {
	server := newOverseerrServer(t, nil, map[int]string{7: "123456789"})
	defer server.Close()

	client := NewOverseerrClient(server.Client(), zerolog.Nop(), server.URL, testOverseerrKey)

	id, err := client.GetDiscordID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "123456789", id)

	id, err = client.GetDiscordID(context.Background(), 8)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestOverseerrClient_TestConnection(t *testing.T) {
	server := newOverseerrServer(t, nil, nil)
	defer server.Close()

	client := NewOverseerrClient(server.Client(), zerolog.Nop(), server.URL, testOverseerrKey)
	require.NoError(t, client.TestConnection(context.Background()))

	bad := NewOverseerrClient(server.Client(), zerolog.Nop(), server.URL, "wrong-key")
	assert.Error(t, bad.TestConnection(context.Background()))
}
