// Package tasks registers the bot's background jobs with the scheduler.
package tasks

import (
	"context"
	"time"

	"github.com/plexbot/plexbot/internal/scheduler"
	"github.com/plexbot/plexbot/internal/status"
)

const StatusPruneTaskID = "status-prune"

// RegisterStatusPruneTask registers the task that drops dashboard
// records older than the retention window. Runs every 15 minutes.
func RegisterStatusPruneTask(sched *scheduler.Scheduler, store *status.Store) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          StatusPruneTaskID,
		Name:        "Status Prune",
		Description: "Drops dashboard activity records older than the retention window",
		Cron:        "*/15 * * * *",
		Func: func(ctx context.Context) error {
			store.Prune(time.Now())
			return nil
		},
	})
}
