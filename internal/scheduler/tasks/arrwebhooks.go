package tasks

import (
	"context"

	"github.com/plexbot/plexbot/internal/arr"
	"github.com/plexbot/plexbot/internal/scheduler"
)

const ArrWebhookSyncTaskID = "arr-webhook-sync"

// RegisterArrWebhookSyncTask registers the task that keeps the bot's
// webhook registered in every *Arr instance. Runs at startup and daily
// at 4 AM to repair registrations that drifted or were removed.
func RegisterArrWebhookSyncTask(sched *scheduler.Scheduler, arrService *arr.Service) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          ArrWebhookSyncTaskID,
		Name:        "Webhook Registration Sync",
		Description: "Ensures the bot's webhook exists in every *Arr instance",
		Cron:        "0 4 * * *",
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			arrService.SyncWebhooks(ctx)
			return nil
		},
	})
}
