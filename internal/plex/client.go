// Package plex talks to a Plex Media Server over its HTTP API using a
// static server URL and token.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	userAgent = "PlexBot"
	product   = "PlexBot"
)

// LibrarySection is one Plex library.
type LibrarySection struct {
	Key   int    `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Identity describes the server answering /identity.
type Identity struct {
	MachineIdentifier string `json:"machineIdentifier"`
	Version           string `json:"version"`
}

// Client handles communication with a Plex Media Server.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	serverURL  string
	token      string
	clientID   string
	version    string
}

// NewClient creates a new Plex API client for a single server.
func NewClient(httpClient *http.Client, logger zerolog.Logger, serverURL, token, version string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "plex-client").Logger(),
		serverURL:  serverURL,
		token:      token,
		clientID:   uuid.New().String(),
		version:    version,
	}
}

// ServerURL returns the configured server URL.
func (c *Client) ServerURL() string {
	return c.serverURL
}

func (c *Client) getHeaders() map[string]string {
	return map[string]string{
		"X-Plex-Client-Identifier": c.clientID,
		"X-Plex-Product":           product,
		"X-Plex-Version":           c.version,
		"X-Plex-Platform":          runtime.GOOS,
		"X-Plex-Platform-Version":  runtime.GOARCH,
		"X-Plex-Device":            runtime.GOOS,
		"X-Plex-Device-Name":       product,
		"X-Plex-Token":             c.token,
		"Accept":                   "application/json",
	}
}

func (c *Client) doRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.getHeaders() {
		req.Header.Set(key, value)
	}

	return c.httpClient.Do(req)
}

// GetLibrarySections returns the library sections on the server.
func (c *Client) GetLibrarySections(ctx context.Context) ([]LibrarySection, error) {
	url := fmt.Sprintf("%s/library/sections", c.serverURL)

	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get library sections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get library sections: status %d, body: %s", resp.StatusCode, string(body))
	}

	var mediaContainer struct {
		MediaContainer struct {
			Directory []struct {
				Key   string `json:"key"`
				Title string `json:"title"`
				Type  string `json:"type"`
			} `json:"Directory"`
		} `json:"MediaContainer"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&mediaContainer); err != nil {
		return nil, fmt.Errorf("failed to decode library sections: %w", err)
	}

	var sections []LibrarySection
	for _, dir := range mediaContainer.MediaContainer.Directory {
		key, _ := strconv.Atoi(dir.Key)
		sections = append(sections, LibrarySection{
			Key:   key,
			Title: dir.Title,
			Type:  dir.Type,
		})
	}

	return sections, nil
}

// RefreshSection triggers a full refresh of a library section.
func (c *Client) RefreshSection(ctx context.Context, sectionKey int) error {
	url := fmt.Sprintf("%s/library/sections/%d/refresh", c.serverURL, sectionKey)

	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to refresh section: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to refresh section: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// RefreshPath triggers a partial refresh of a specific path in a section.
func (c *Client) RefreshPath(ctx context.Context, sectionKey int, path string) error {
	reqURL := fmt.Sprintf("%s/library/sections/%d/refresh?path=%s", c.serverURL, sectionKey, url.QueryEscape(path))

	resp, err := c.doRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to refresh path: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to refresh path: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Activity is an in-progress server task, such as a library scan or
// metadata refresh.
type Activity struct {
	UUID     string `json:"uuid"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Progress int    `json:"progress"`
}

// GetActivities returns the tasks the server is currently running.
func (c *Client) GetActivities(ctx context.Context) ([]Activity, error) {
	url := fmt.Sprintf("%s/activities", c.serverURL)

	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get activities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get activities: status %d, body: %s", resp.StatusCode, string(body))
	}

	var mediaContainer struct {
		MediaContainer struct {
			Activity []Activity `json:"Activity"`
		} `json:"MediaContainer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mediaContainer); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}

	return mediaContainer.MediaContainer.Activity, nil
}

// TestConnection checks that the server responds and the token is valid.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetIdentity(ctx)
	return err
}

// GetIdentity fetches the server identity.
func (c *Client) GetIdentity(ctx context.Context) (*Identity, error) {
	url := fmt.Sprintf("%s/identity", c.serverURL)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var identity struct {
		MediaContainer Identity `json:"MediaContainer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}

	return &identity.MediaContainer, nil
}
