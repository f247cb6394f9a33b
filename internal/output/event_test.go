package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jaa/deckload/internal/install"
)

func TestJSONEmitterSerializesEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	emitter := NewJSONEmitter(buf)

	event := Event{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     LevelInfo,
		Event:     EventInstallStarted,
		RunID:     "run-1",
		Message:   "install started",
		Details: map[string]any{
			"depots": 2,
		},
	}

	if err := emitter.Emit(event); err != nil {
		t.Fatalf("emit: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}

	if decoded["event"] != string(EventInstallStarted) {
		t.Fatalf("unexpected event name: %v", decoded["event"])
	}
	if decoded["run_id"] != "run-1" {
		t.Fatalf("unexpected run id: %v", decoded["run_id"])
	}
}

func TestHumanEmitterQuietKeepsSummary(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	emitter := NewHumanEmitter(stdout, stderr, true, false)

	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventInstallStarted, Message: "started"})
	_ = emitter.Emit(Event{Level: LevelWarn, Event: EventInstallCancelled, Message: "cancelled"})
	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventInstallFinished, Message: "Installation complete!"})
	_ = emitter.Emit(Event{Level: LevelError, Event: EventInstallFailed, Message: "rsync error code 12"})

	if stdout.String() != "Installation complete!\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if stderr.String() != "CANCELLED: cancelled\nERROR: rsync error code 12\n" {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestHumanEmitterPrintsPhaseChangesOnce(t *testing.T) {
	stdout := &bytes.Buffer{}
	emitter := NewHumanEmitter(stdout, &bytes.Buffer{}, false, false)

	for _, percent := range []float64{10, 20, 30} {
		_ = emitter.Emit(Event{Level: LevelInfo, Event: EventInstallProgress, Message: "Downloading depot 1/1 (ID: 621)", Details: map[string]any{"download_percent": percent}})
	}
	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventInstallProgress, Message: "Download complete!"})

	want := "Downloading depot 1/1 (ID: 621)\nDownload complete!\n"
	if stdout.String() != want {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestHumanEmitterVerboseShowsPercent(t *testing.T) {
	stdout := &bytes.Buffer{}
	emitter := NewHumanEmitter(stdout, &bytes.Buffer{}, false, true)

	_ = emitter.Emit(Event{Level: LevelInfo, Event: EventInstallProgress, Message: "Downloading", Details: map[string]any{"download_percent": 42.0}})

	if stdout.String() != "Downloading (42.0%)\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestSnapshotEventMapsStates(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		snapshot install.Snapshot
		event    EventName
		level    Level
	}{
		{install.Snapshot{State: install.StateDownloading}, EventInstallProgress, LevelInfo},
		{install.Snapshot{State: install.StateFinished}, EventInstallFinished, LevelInfo},
		{install.Snapshot{State: install.StateFinished, FailedDepots: 1}, EventInstallFinished, LevelWarn},
		{install.Snapshot{State: install.StateError}, EventInstallFailed, LevelError},
		{install.Snapshot{State: install.StateCancelled}, EventInstallCancelled, LevelWarn},
	}
	for _, tc := range cases {
		got := SnapshotEvent(tc.snapshot, now)
		if got.Event != tc.event || got.Level != tc.level {
			t.Fatalf("state %s: got %s/%s, want %s/%s", tc.snapshot.State, got.Event, got.Level, tc.event, tc.level)
		}
	}
}
