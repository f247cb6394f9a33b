package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jaa/deckload/internal/install"
)

func TestProgressWriterNonInteractivePrintsStateChanges(t *testing.T) {
	buf := &bytes.Buffer{}
	writer := NewProgressWriterWithOptions(buf, ProgressOptions{})

	writer.Publish(install.Snapshot{State: install.StateDownloading, Message: "Downloading depot 1/2 (ID: 621)"})
	writer.Publish(install.Snapshot{State: install.StateDownloading, Message: "Downloading depot 1/2 (ID: 621)", DownloadPercent: 20})
	writer.Publish(install.Snapshot{State: install.StateFinished, Message: "Installation complete!", DownloadPercent: 100})

	want := "[downloading] Downloading depot 1/2 (ID: 621)\n[finished] Installation complete!\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestProgressWriterInteractiveRedrawsInPlace(t *testing.T) {
	buf := &bytes.Buffer{}
	writer := NewProgressWriterWithOptions(buf, ProgressOptions{Interactive: true, BarWidth: 10})

	writer.Publish(install.Snapshot{State: install.StateDownloading, Message: "Downloading to Steam library...", DownloadPercent: 50, DownloadSpeed: "12.5 MB/s", ETA: "1m 2s"})
	writer.Publish(install.Snapshot{State: install.StateDownloading, Message: "Downloading to Steam library...", DownloadPercent: 50, DownloadSpeed: "12.5 MB/s", ETA: "1m 2s"})
	if err := writer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\r\033[2K[#####-----]  50.0%  12.5 MB/s  ETA 1m 2s") {
		t.Fatalf("expected in-place progress line, got %q", out)
	}
	if strings.Count(out, "[#####-----]") != 1 {
		t.Fatalf("identical snapshots must not redraw, got %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[2K") {
		t.Fatalf("flush must clear the active line, got %q", out)
	}
}

func TestProgressWriterTransferLineShowsCounts(t *testing.T) {
	writer := NewProgressWriterWithOptions(&bytes.Buffer{}, ProgressOptions{BarWidth: 4})
	line := writer.progressLine(install.Snapshot{
		State:            install.StateTransferring,
		DownloadPercent:  75,
		FilesTotal:       10,
		FilesTransferred: 5,
		BytesTotal:       2_000_000,
		BytesTransferred: 1_000_000,
		TransferSpeed:    "10.52MB/s",
	})
	want := "[###-]  75.0%  5/10 files  1.0 MB/2.0 MB  10.52MB/s"
	if line != want {
		t.Fatalf("unexpected transfer line %q, want %q", line, want)
	}
}
