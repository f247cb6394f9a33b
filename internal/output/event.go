package output

import "time"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type EventName string

const (
	EventInstallStarted   EventName = "install_started"
	EventInstallProgress  EventName = "install_progress"
	EventInstallFinished  EventName = "install_finished"
	EventInstallFailed    EventName = "install_failed"
	EventInstallCancelled EventName = "install_cancelled"
	EventServerStarted    EventName = "server_started"
)

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Event     EventName      `json:"event"`
	RunID     string         `json:"run_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
