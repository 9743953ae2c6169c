package tasks

import (
	"context"

	"github.com/plexbot/plexbot/internal/arr"
	"github.com/plexbot/plexbot/internal/plex"
	"github.com/plexbot/plexbot/internal/scheduler"
	"github.com/plexbot/plexbot/internal/status"
)

const ConnectivityTaskID = "connectivity-check"

// RegisterConnectivityTask registers the task that probes Plex and every
// *Arr instance and records their reachability for the dashboard. Runs
// every 5 minutes and once at startup.
func RegisterConnectivityTask(sched *scheduler.Scheduler, plexClient *plex.Client, arrService *arr.Service, store *status.Store) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          ConnectivityTaskID,
		Name:        "Connectivity Check",
		Description: "Probes Plex and *Arr instances and records their reachability",
		Cron:        "*/5 * * * *",
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			if plexClient != nil {
				st := status.ServiceStatus{Name: "plex"}
				if err := plexClient.TestConnection(ctx); err != nil {
					st.Error = err.Error()
				} else {
					st.Online = true
				}
				store.SetService(st)
			}
			if arrService != nil {
				arrService.CheckConnections(ctx)
			}
			return nil
		},
	})
}
