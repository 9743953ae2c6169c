package arr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/plexbot/plexbot/internal/config"
	"github.com/plexbot/plexbot/internal/status"
)

// Recorder receives connectivity results for the dashboard.
type Recorder interface {
	SetService(st status.ServiceStatus)
}

// Service manages all configured *Arr instances.
type Service struct {
	clients    []*Client
	httpClient *http.Client
	baseURL    string
	recorder   Recorder
	log        zerolog.Logger
}

// NewService builds clients for every enabled instance. baseURL is this
// service's externally reachable address, used for webhook registration.
func NewService(httpClient *http.Client, logger zerolog.Logger, cfg config.ArrConfig, baseURL string, recorder Recorder) *Service {
	s := &Service{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		recorder:   recorder,
		log:        logger.With().Str("component", "arr").Logger(),
	}
	for _, inst := range cfg.Instances {
		if !inst.Enabled {
			continue
		}
		s.clients = append(s.clients, NewClient(httpClient, logger, inst))
	}
	return s
}

// Clients returns the managed instance clients.
func (s *Service) Clients() []*Client {
	return s.clients
}

// webhookURL is the inbound endpoint an instance of the given type
// should post to.
func (s *Service) webhookURL(instanceType string) string {
	return fmt.Sprintf("%s/webhook/%s", s.baseURL, instanceType)
}

// SyncWebhooks makes sure every instance posts download events to the
// bot. Failures are logged per instance; one unreachable instance does
// not block the others.
func (s *Service) SyncWebhooks(ctx context.Context) {
	if s.baseURL == "" {
		s.log.Warn().Msg("No server base URL configured, skipping webhook registration")
		return
	}
	for _, c := range s.clients {
		inst := c.Instance()
		changed, err := c.EnsureWebhook(ctx, s.webhookURL(inst.Type))
		if err != nil {
			s.log.Error().Err(err).Str("instance", inst.Name).Msg("Webhook registration failed")
			continue
		}
		if !changed {
			s.log.Debug().Str("instance", inst.Name).Msg("Webhook already registered")
		}
	}
}

// CheckConnections probes every instance and records the results.
func (s *Service) CheckConnections(ctx context.Context) {
	for _, c := range s.clients {
		inst := c.Instance()
		st := status.ServiceStatus{Name: inst.Name}
		if _, err := c.TestConnection(ctx); err != nil {
			st.Error = err.Error()
		} else {
			st.Online = true
		}
		if s.recorder != nil {
			s.recorder.SetService(st)
		}
	}
}

// TestConnection probes an arbitrary instance definition, without
// requiring it to be configured, and returns its reported status.
func (s *Service) TestConnection(ctx context.Context, inst config.ArrInstance) (*SystemStatus, error) {
	return NewClient(s.httpClient, s.log, inst).TestConnection(ctx)
}
