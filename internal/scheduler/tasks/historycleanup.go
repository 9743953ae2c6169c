package tasks

import (
	"context"
	"time"

	"github.com/plexbot/plexbot/internal/history"
	"github.com/plexbot/plexbot/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask registers the history cleanup task.
// The task runs daily at 2 AM to delete entries older than the configured
// retention period.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service, retentionDays int) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          HistoryCleanupTaskID,
		Name:        "History Cleanup",
		Description: "Deletes notification history older than the configured retention period",
		Cron:        "0 2 * * *",
		Func: func(ctx context.Context) error {
			_, err := historyService.Cleanup(ctx, time.Duration(retentionDays)*24*time.Hour)
			return err
		},
	})
}
