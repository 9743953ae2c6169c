package users

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// OverseerrUser is one user account known to Overseerr.
type OverseerrUser struct {
	ID           int    `json:"id"`
	PlexUsername string `json:"plexUsername"`
	Email        string `json:"email"`
}

// OverseerrClient talks to the Overseerr HTTP API.
type OverseerrClient struct {
	httpClient *http.Client
	logger     zerolog.Logger
	baseURL    string
	apiKey     string
}

// NewOverseerrClient creates a client for an Overseerr instance.
func NewOverseerrClient(httpClient *http.Client, logger zerolog.Logger, baseURL, apiKey string) *OverseerrClient {
	return &OverseerrClient{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "overseerr-client").Logger(),
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

func (c *OverseerrClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("overseerr returned status %d, body: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUsers returns all Overseerr users, following pagination.
func (c *OverseerrClient) GetUsers(ctx context.Context) ([]OverseerrUser, error) {
	const pageSize = 100

	var users []OverseerrUser
	for skip := 0; ; skip += pageSize {
		var page struct {
			PageInfo struct {
				Pages   int `json:"pages"`
				Page    int `json:"page"`
				Results int `json:"results"`
			} `json:"pageInfo"`
			Results []OverseerrUser `json:"results"`
		}
		path := fmt.Sprintf("/api/v1/user?take=%d&skip=%d", pageSize, skip)
		if err := c.get(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		users = append(users, page.Results...)
		if len(page.Results) < pageSize || page.PageInfo.Page >= page.PageInfo.Pages {
			break
		}
	}
	return users, nil
}

// GetDiscordID returns the Discord ID configured in a user's
// notification settings, or empty when unset.
func (c *OverseerrClient) GetDiscordID(ctx context.Context, userID int) (string, error) {
	var settings struct {
		DiscordID string `json:"discordId"`
	}
	path := fmt.Sprintf("/api/v1/user/%d/settings/notifications", userID)
	if err := c.get(ctx, path, &settings); err != nil {
		return "", fmt.Errorf("failed to get notification settings for user %d: %w", userID, err)
	}
	return settings.DiscordID, nil
}

// TestConnection checks that the Overseerr instance responds.
func (c *OverseerrClient) TestConnection(ctx context.Context) error {
	var st struct {
		Version string `json:"version"`
	}
	return c.get(ctx, "/api/v1/status", &st)
}
