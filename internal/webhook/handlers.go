package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Ingestor receives normalized events for debounced batching.
type Ingestor interface {
	Ingest(event MediaEvent)
}

// TestSender delivers an immediate test notification for a source.
type TestSender interface {
	SendTest(source string) error
}

// Handlers provides the inbound webhook endpoint.
type Handlers struct {
	ingestor Ingestor
	tester   TestSender
	log      zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ingestor Ingestor, tester TestSender, log zerolog.Logger) *Handlers {
	return &Handlers{
		ingestor: ingestor,
		tester:   tester,
		log:      log.With().Str("component", "webhook").Logger(),
	}
}

// RegisterRoutes registers the webhook endpoint on the provided group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/:source", h.Receive)
}

// Receive accepts a webhook from a *Arr application, normalizes it and
// queues the resulting events. The response is always an acknowledgement;
// senders have no useful retry semantics, so drops are logged instead of
// surfaced.
// POST /webhook/:source
func (h *Handlers) Receive(c echo.Context) error {
	source := Source(c.Param("source"))
	if !source.Valid() {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown webhook source"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
	}

	if EventType(body) == eventTest {
		h.log.Info().Str("source", string(source)).Msg("Received test webhook")
		if h.tester != nil {
			if err := h.tester.SendTest(string(source)); err != nil {
				h.log.Error().Err(err).Str("source", string(source)).Msg("Test notification failed")
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "test received"})
	}

	events, err := Normalize(source, body, time.Now())
	if err != nil {
		var nerr *NormalizationError
		if errors.As(err, &nerr) && nerr == ErrIgnoredEvent {
			h.log.Debug().Str("source", string(source)).Str("eventType", EventType(body)).Msg("Ignoring webhook event type")
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}
		h.log.Warn().Err(err).Str("source", string(source)).Msg("Dropping malformed webhook payload")
		return c.JSON(http.StatusOK, map[string]string{"status": "received"})
	}

	for _, ev := range events {
		h.ingestor.Ingest(ev)
	}
	h.log.Info().
		Str("source", string(source)).
		Int("events", len(events)).
		Str("title", events[0].Title).
		Msg("Queued webhook events")

	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}
