package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/jaa/deckload/internal/install"
)

const defaultBarWidth = 30

type ProgressOptions struct {
	// Interactive redraws one status line in place; otherwise only state
	// and message changes are printed.
	Interactive bool
	Color       bool
	BarWidth    int
}

// ProgressWriter renders install snapshots for a terminal. It implements
// install.Publisher.
type ProgressWriter struct {
	dst  io.Writer
	opts ProgressOptions
	bar  progress.Model

	mu          sync.Mutex
	activeLine  string
	lastState   install.State
	lastMessage string
}

func NewProgressWriter(dst io.Writer, noColor bool) *ProgressWriter {
	interactive := IsTerminal(dst)
	return NewProgressWriterWithOptions(dst, ProgressOptions{
		Interactive: interactive,
		Color:       interactive && !noColor,
		BarWidth:    barWidth(dst),
	})
}

func NewProgressWriterWithOptions(dst io.Writer, opts ProgressOptions) *ProgressWriter {
	if opts.BarWidth <= 0 {
		opts.BarWidth = defaultBarWidth
	}
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(opts.BarWidth),
		progress.WithoutPercentage(),
	)
	return &ProgressWriter{dst: dst, opts: opts, bar: bar}
}

// IsTerminal reports whether w is a terminal that supports in-place redraws.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func barWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok {
		return defaultBarWidth
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return defaultBarWidth
	}
	// leave room for percent, speed, ETA and counts
	if width/3 < defaultBarWidth {
		return max(10, width/3)
	}
	return defaultBarWidth
}

func (w *ProgressWriter) Publish(snapshot install.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.renderLocked(snapshot)
}

// Flush clears the in-place status line.
func (w *ProgressWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clearActiveLineLocked()
}

func (w *ProgressWriter) renderLocked(snapshot install.Snapshot) error {
	if snapshot.State != w.lastState || snapshot.Message != w.lastMessage {
		w.lastState = snapshot.State
		w.lastMessage = snapshot.Message
		if err := w.printPersistentLocked(w.statusLine(snapshot)); err != nil {
			return err
		}
	}
	if !w.opts.Interactive || snapshot.State.Terminal() || snapshot.State == install.StateIdle {
		return nil
	}

	line := w.progressLine(snapshot)
	if line == w.activeLine {
		return nil
	}
	w.activeLine = line
	_, err := fmt.Fprintf(w.dst, "\r\033[2K%s", line)
	return err
}

func (w *ProgressWriter) statusLine(snapshot install.Snapshot) string {
	label := "[" + string(snapshot.State) + "]"
	if w.opts.Color {
		label = stateStyle(snapshot.State).Render(label)
	}
	return label + " " + snapshot.Message
}

func (w *ProgressWriter) progressLine(snapshot install.Snapshot) string {
	parts := []string{w.renderBar(snapshot.DownloadPercent)}

	switch snapshot.State {
	case install.StateTransferring:
		if snapshot.FilesTotal > 0 {
			parts = append(parts, fmt.Sprintf("%d/%d files", snapshot.FilesTransferred, snapshot.FilesTotal))
		}
		if snapshot.BytesTotal > 0 {
			parts = append(parts, fmt.Sprintf("%s/%s", humanize.Bytes(uint64(snapshot.BytesTransferred)), humanize.Bytes(uint64(snapshot.BytesTotal))))
		}
		if snapshot.TransferSpeed != "" {
			parts = append(parts, snapshot.TransferSpeed)
		}
	default:
		if snapshot.DownloadSpeed != "" {
			parts = append(parts, snapshot.DownloadSpeed)
		}
		if snapshot.ETA != "" {
			parts = append(parts, "ETA "+snapshot.ETA)
		}
	}
	return strings.Join(parts, "  ")
}

func (w *ProgressWriter) renderBar(percent float64) string {
	clamped := min(max(percent, 0), 100)
	if w.opts.Color {
		return fmt.Sprintf("%s %5.1f%%", w.bar.ViewAs(clamped/100), clamped)
	}
	filled := int((clamped / 100) * float64(w.opts.BarWidth))
	bar := strings.Repeat("#", filled) + strings.Repeat("-", w.opts.BarWidth-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, clamped)
}

func (w *ProgressWriter) printPersistentLocked(line string) error {
	if err := w.clearActiveLineLocked(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w.dst, line)
	return err
}

func (w *ProgressWriter) clearActiveLineLocked() error {
	if !w.opts.Interactive || w.activeLine == "" {
		return nil
	}
	w.activeLine = ""
	_, err := fmt.Fprint(w.dst, "\r\033[2K")
	return err
}

func stateStyle(state install.State) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch state {
	case install.StateFinished:
		return style.Foreground(lipgloss.Color("42"))
	case install.StateError:
		return style.Foreground(lipgloss.Color("196"))
	case install.StateCancelled, install.StatePaused:
		return style.Foreground(lipgloss.Color("214"))
	case install.StateTransferring:
		return style.Foreground(lipgloss.Color("39"))
	default:
		return style.Foreground(lipgloss.Color("111"))
	}
}
