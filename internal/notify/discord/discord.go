// Package discord delivers messages to Discord webhook endpoints.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Discord embed colors
const (
	ColorSuccess = 0x2ECC71 // Green
	ColorWarning = 0xF1C40F // Yellow
	ColorDanger  = 0xE74C3C // Red
	ColorInfo    = 0x3498DB // Blue
	ColorDefault = 0x7289DA // Discord blurple

	// Per-source brand colors
	ColorSonarr  = 0x35C5F4
	ColorRadarr  = 0xFFC230
	ColorReadarr = 0xE74C3C
)

// WebhookPayload is the Discord webhook request body
type WebhookPayload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Content   string  `json:"content,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

// Embed is a Discord embed object
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedAuthor is the author section of an embed
type EmbedAuthor struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedImage is an image in an embed
type EmbedImage struct {
	URL string `json:"url,omitempty"`
}

// EmbedField is a field in an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the footer section of an embed
type EmbedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Sender posts webhook payloads to Discord.
type Sender struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewSender creates a Sender using the given HTTP client.
func NewSender(httpClient *http.Client, logger zerolog.Logger) *Sender {
	return &Sender{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "discord").Logger(),
	}
}

// Send posts a payload to the given webhook URL.
func (s *Sender) Send(ctx context.Context, webhookURL string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}

	return nil
}
