package output

import (
	"time"

	"github.com/jaa/deckload/internal/install"
)

// SnapshotEvent describes an install snapshot as an Event. Terminal states
// map to their own event names; everything else is progress.
func SnapshotEvent(snapshot install.Snapshot, now time.Time) Event {
	event := Event{
		Timestamp: now.UTC(),
		Level:     LevelInfo,
		Event:     EventInstallProgress,
		RunID:     snapshot.RunID,
		Message:   snapshot.Message,
		Details: map[string]any{
			"state":             snapshot.State,
			"download_percent":  snapshot.DownloadPercent,
			"download_speed":    snapshot.DownloadSpeed,
			"eta":               snapshot.ETA,
			"files_total":       snapshot.FilesTotal,
			"files_transferred": snapshot.FilesTransferred,
			"bytes_total":       snapshot.BytesTotal,
			"bytes_transferred": snapshot.BytesTransferred,
			"transfer_speed":    snapshot.TransferSpeed,
		},
	}
	switch snapshot.State {
	case install.StateFinished:
		event.Event = EventInstallFinished
		if snapshot.FailedDepots > 0 {
			event.Level = LevelWarn
			event.Details["failed_depots"] = snapshot.FailedDepots
		}
	case install.StateError:
		event.Event = EventInstallFailed
		event.Level = LevelError
	case install.StateCancelled:
		event.Event = EventInstallCancelled
		event.Level = LevelWarn
	}
	return event
}

// EventPublisher forwards snapshots to an EventEmitter.
type EventPublisher struct {
	emitter EventEmitter
	now     func() time.Time
}

func NewEventPublisher(emitter EventEmitter) *EventPublisher {
	return &EventPublisher{emitter: emitter, now: time.Now}
}

func (p *EventPublisher) Publish(snapshot install.Snapshot) {
	_ = p.emitter.Emit(SnapshotEvent(snapshot, p.now()))
}
