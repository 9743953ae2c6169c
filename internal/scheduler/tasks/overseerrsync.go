package tasks

import (
	"fmt"

	"github.com/plexbot/plexbot/internal/scheduler"
	"github.com/plexbot/plexbot/internal/users"
)

const OverseerrSyncTaskID = "overseerr-sync"

// RegisterOverseerrSyncTask registers the user mapping refresh task. The
// interval comes from configuration; sub-hour intervals map directly to
// a minute step, anything longer runs on the hour.
func RegisterOverseerrSyncTask(sched *scheduler.Scheduler, svc *users.Service, intervalMinutes int) error {
	if intervalMinutes < 1 {
		intervalMinutes = 60
	}
	cron := fmt.Sprintf("*/%d * * * *", intervalMinutes)
	if intervalMinutes >= 60 {
		hours := intervalMinutes / 60
		cron = fmt.Sprintf("0 */%d * * *", hours)
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          OverseerrSyncTaskID,
		Name:        "Overseerr User Sync",
		Description: "Refreshes Plex to Discord user mappings from Overseerr",
		Cron:        cron,
		RunOnStart:  true,
		Func:        svc.Sync,
	})
}
