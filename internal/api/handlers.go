package api

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/plexbot/plexbot/internal/config"
	"github.com/plexbot/plexbot/internal/history"
	"github.com/plexbot/plexbot/internal/logger"
	"github.com/plexbot/plexbot/internal/plex"
)

// getStatus returns service connectivity and pipeline state for the
// dashboard.
// GET /api/status
func (s *Server) getStatus(c echo.Context) error {
	resp := map[string]interface{}{
		"services":         s.deps.Store.Services(),
		"pendingBatches":   s.deps.Aggregator.PendingCount(),
		"connectedClients": s.deps.Hub.ClientCount(),
	}
	if s.deps.Users != nil {
		if last := s.deps.Users.LastSync(); !last.IsZero() {
			resp["lastUserSync"] = last
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// listNotifications returns recent deliveries from the in-memory window.
// GET /api/notifications
func (s *Server) listNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Store.Notifications())
}

// listNotificationHistory returns persisted deliveries, optionally
// restricted to a trailing window.
// GET /api/notifications/history?hours=24&limit=50
func (s *Server) listNotificationHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hours, _ := strconv.Atoi(c.QueryParam("hours"))

	var entries []history.Entry
	var err error
	if hours > 0 {
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		entries, err = s.deps.History.RecentSince(c.Request().Context(), since, limit)
	} else {
		entries, err = s.deps.History.Recent(c.Request().Context(), limit)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, entries)
}

// listUserMappings returns the Plex to Discord mapping table.
// GET /api/users/mappings
func (s *Server) listUserMappings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Users.Mappings())
}

// listUserCounts returns per-user delivery totals.
// GET /api/users/counts
func (s *Server) listUserCounts(c echo.Context) error {
	counts, err := s.deps.History.UserCounts(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, counts)
}

// listUserNotifications returns deliveries that mentioned one user.
// GET /api/users/:discordId/notifications
func (s *Server) listUserNotifications(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := s.deps.History.RecentForUser(c.Request().Context(), c.Param("discordId"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, entries)
}

// listScans returns recent scan runs.
// GET /api/scans
func (s *Server) listScans(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Store.Scans())
}

// triggerScan starts a manual library scan. An empty or "all" library
// scans every section.
// POST /api/scan
func (s *Server) triggerScan(c echo.Context) error {
	var req struct {
		Library string `json:"library"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Library == "" || req.Library == "all" {
		s.deps.Scanner.ScanAll()
	} else {
		s.deps.Scanner.ScanLibrary(req.Library)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "scan requested"})
}

// triggerItemScan refreshes one path inside a library.
// POST /api/scan/item
func (s *Server) triggerItemScan(c echo.Context) error {
	var req struct {
		Library string `json:"library"`
		Path    string `json:"path"`
	}
	if err := c.Bind(&req); err != nil || req.Library == "" || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "library and path are required"})
	}

	if err := s.deps.Scanner.ScanItem(c.Request().Context(), req.Library, req.Path); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "item scanned"})
}

// listLibraries returns the Plex library sections.
// GET /api/libraries
func (s *Server) listLibraries(c echo.Context) error {
	sections, err := s.deps.Plex.GetLibrarySections(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, sections)
}

// listActivities proxies the Plex activity feed so the dashboard can
// show scan progress.
// GET /api/activities
func (s *Server) listActivities(c echo.Context) error {
	activities, err := s.deps.Plex.GetActivities(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	if activities == nil {
		activities = []plex.Activity{}
	}
	return c.JSON(http.StatusOK, activities)
}

// listTasks returns all scheduled background tasks.
// GET /api/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Scheduler.ListTasks())
}

// runTask manually triggers a scheduled task.
// POST /api/tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	taskID := c.Param("id")
	if err := s.deps.Scheduler.RunNow(taskID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Task started",
		"taskId":  taskID,
	})
}

// testArrInstance probes an *Arr instance with credentials from the
// request, without requiring it to be configured.
// POST /api/arr/test
func (s *Server) testArrInstance(c echo.Context) error {
	var inst config.ArrInstance
	if err := c.Bind(&inst); err != nil || inst.URL == "" || inst.APIKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url and api_key are required"})
	}

	st, err := s.deps.Arr.TestConnection(c.Request().Context(), inst)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, st)
}

// syncArrWebhooks re-registers the bot's webhook in every enabled *Arr
// instance.
// POST /api/arr/webhook
func (s *Server) syncArrWebhooks(c echo.Context) error {
	s.deps.Arr.SyncWebhooks(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]string{"status": "webhooks synced"})
}

// getRecentLogs returns buffered log entries.
// GET /api/logs
func (s *Server) getRecentLogs(c echo.Context) error {
	logs := s.deps.Log.RecentLogs()
	if logs == nil {
		logs = []logger.Entry{}
	}
	return c.JSON(http.StatusOK, logs)
}

// downloadLogFile serves the current log file for download.
// GET /api/logs/download
func (s *Server) downloadLogFile(c echo.Context) error {
	logPath := s.deps.Log.LogFilePath()
	if logPath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}

	return c.Attachment(logPath, "plexbot.log")
}
