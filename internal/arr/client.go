// Package arr talks to Sonarr, Radarr and Readarr management APIs, and
// keeps the bot's webhook registered in each instance.
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/config"
)

const webhookName = "PlexBot"

// Notification is an *Arr notification connection resource.
type Notification struct {
	ID             int     `json:"id,omitempty"`
	Name           string  `json:"name"`
	Implementation string  `json:"implementation"`
	ConfigContract string  `json:"configContract"`
	OnGrab         bool    `json:"onGrab"`
	OnDownload     bool    `json:"onDownload"`
	OnUpgrade      bool    `json:"onUpgrade"`
	Fields         []Field `json:"fields"`
}

// Field is one settings field of a notification resource.
type Field struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value,omitempty"`
}

// SystemStatus is the subset of /system/status the bot reads.
type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}

// Client wraps one *Arr instance's API.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	instance   config.ArrInstance
}

// NewClient creates a client for a single instance.
func NewClient(httpClient *http.Client, logger zerolog.Logger, instance config.ArrInstance) *Client {
	return &Client{
		httpClient: httpClient,
		logger: logger.With().
			Str("component", "arr-client").
			Str("instance", instance.Name).
			Logger(),
		instance: instance,
	}
}

// Instance returns the configured instance definition.
func (c *Client) Instance() config.ArrInstance {
	return c.instance
}

// apiBase returns the API prefix for the instance type. Readarr still
// serves v1 while Sonarr and Radarr are on v3.
func (c *Client) apiBase() string {
	if c.instance.Type == "readarr" {
		return "/api/v1"
	}
	return "/api/v3"
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimSuffix(c.instance.URL, "/") + c.apiBase() + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.instance.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d, body: %s", c.instance.Name, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// TestConnection verifies the instance responds and the API key works.
func (c *Client) TestConnection(ctx context.Context) (*SystemStatus, error) {
	var st SystemStatus
	if err := c.do(ctx, http.MethodGet, "/system/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListNotifications returns the instance's notification connections.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var notifications []Notification
	if err := c.do(ctx, http.MethodGet, "/notification", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// CreateNotification adds a notification connection.
func (c *Client) CreateNotification(ctx context.Context, n Notification) (*Notification, error) {
	var created Notification
	if err := c.do(ctx, http.MethodPost, "/notification", n, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateNotification replaces an existing notification connection.
func (c *Client) UpdateNotification(ctx context.Context, n Notification) (*Notification, error) {
	var updated Notification
	path := fmt.Sprintf("/notification/%d", n.ID)
	if err := c.do(ctx, http.MethodPut, path, n, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// webhookResource builds the bot's webhook notification pointed at
// webhookURL.
func webhookResource(webhookURL string) Notification {
	return Notification{
		Name:           webhookName,
		Implementation: "Webhook",
		ConfigContract: "WebhookSettings",
		OnGrab:         true,
		OnDownload:     true,
		OnUpgrade:      true,
		Fields: []Field{
			{Name: "url", Value: webhookURL},
			{Name: "method", Value: 1}, // POST
		},
	}
}

// EnsureWebhook creates the bot's webhook in the instance, or repoints
// an existing one whose URL drifted. Returns true when a change was made.
func (c *Client) EnsureWebhook(ctx context.Context, webhookURL string) (bool, error) {
	existing, err := c.ListNotifications(ctx)
	if err != nil {
		return false, err
	}

	for _, n := range existing {
		if n.Name != webhookName || n.Implementation != "Webhook" {
			continue
		}
		if currentURL(n) == webhookURL {
			return false, nil
		}
		updated := webhookResource(webhookURL)
		updated.ID = n.ID
		if _, err := c.UpdateNotification(ctx, updated); err != nil {
			return false, fmt.Errorf("failed to update webhook: %w", err)
		}
		c.logger.Info().Str("url", webhookURL).Msg("Updated webhook registration")
		return true, nil
	}

	if _, err := c.CreateNotification(ctx, webhookResource(webhookURL)); err != nil {
		return false, fmt.Errorf("failed to create webhook: %w", err)
	}
	c.logger.Info().Str("url", webhookURL).Msg("Registered webhook")
	return true, nil
}

func currentURL(n Notification) string {
	for _, f := range n.Fields {
		if f.Name == "url" {
			if s, ok := f.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
