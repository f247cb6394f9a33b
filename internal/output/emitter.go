package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

type EventEmitter interface {
	Emit(event Event) error
}

type JSONEmitter struct {
	enc *json.Encoder
	mu  sync.Mutex
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONEmitter{enc: enc}
}

func (e *JSONEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(event)
}

// HumanEmitter prints one line per phase change. Terminal events always
// print, even when quiet; progress ticks that repeat the previous message
// only print with verbose, which also appends the percent.
type HumanEmitter struct {
	stdout  io.Writer
	stderr  io.Writer
	quiet   bool
	verbose bool

	mu          sync.Mutex
	lastMessage string
}

func NewHumanEmitter(stdout, stderr io.Writer, quiet, verbose bool) *HumanEmitter {
	return &HumanEmitter{stdout: stdout, stderr: stderr, quiet: quiet, verbose: verbose}
}

func (e *HumanEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	line := event.Message
	if line == "" {
		line = string(event.Event)
	}

	switch event.Event {
	case EventInstallFailed:
		_, err := fmt.Fprintln(e.stderr, "ERROR:", line)
		return err
	case EventInstallCancelled:
		_, err := fmt.Fprintln(e.stderr, "CANCELLED:", line)
		return err
	case EventInstallFinished:
		if event.Level == LevelWarn {
			_, err := fmt.Fprintln(e.stderr, "WARN:", line)
			return err
		}
		_, err := fmt.Fprintln(e.stdout, line)
		return err
	}

	if e.quiet {
		return nil
	}
	switch event.Level {
	case LevelError:
		_, err := fmt.Fprintln(e.stderr, "ERROR:", line)
		return err
	case LevelWarn:
		_, err := fmt.Fprintln(e.stderr, "WARN:", line)
		return err
	}

	repeated := line == e.lastMessage
	e.lastMessage = line
	if repeated && !e.verbose {
		return nil
	}
	if e.verbose && event.Event == EventInstallProgress {
		if percent, ok := event.Details["download_percent"].(float64); ok {
			line = fmt.Sprintf("%s (%.1f%%)", line, percent)
		}
	}
	_, err := fmt.Fprintln(e.stdout, line)
	return err
}

type MultiEmitter struct {
	emitters []EventEmitter
}

func NewMultiEmitter(emitters ...EventEmitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (e *MultiEmitter) Emit(event Event) error {
	for _, emitter := range e.emitters {
		if err := emitter.Emit(event); err != nil {
			return err
		}
	}
	return nil
}
