//go:build !windows

package install

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaa/deckload/internal/engine"
)

const fakeDownloader = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -dir) dir="$2"; shift ;;
    -depot) depot="$2"; shift ;;
  esac
  shift
done
mkdir -p "$dir"
echo "$$" > "$PIDFILE"
printf 'Downloading 50.00%%\r'
if [ -n "$HANG" ]; then
  sleep 30
fi
printf 'payload' > "$dir/depot_$depot.bin"
printf 'Downloading 100.00%%\n'
`

func writeScript(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "DepotDownloaderMod")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestSubprocessInstall(t *testing.T) {
	f := newFixture(t, "621", "622")
	f.req.DownloaderPath = writeScript(t, f.root, fakeDownloader)
	t.Setenv("PIDFILE", filepath.Join(f.root, "pid"))

	rec := &recorder{}
	m := f.manager(engine.NewSubprocessRunner(nil, 200*time.Millisecond), rec)

	require.NoError(t, m.Start(f.req))
	final := waitDone(t, m)

	require.Equal(t, StateFinished, final.State, final.Message)
	assert.Equal(t, 2, final.FilesTotal)
	rec.waitFor(t, func(s Snapshot) bool { return s.State == StateDownloading && s.DownloadPercent == 75 })

	entries, err := os.ReadDir(filepath.Join(f.req.TargetDir, "Portal 2"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSubprocessCancelStopsTool(t *testing.T) {
	f := newFixture(t, "621")
	f.req.DownloaderPath = writeScript(t, f.root, fakeDownloader)
	pidFile := filepath.Join(f.root, "pid")
	t.Setenv("PIDFILE", pidFile)
	t.Setenv("HANG", "1")

	rec := &recorder{}
	m := f.manager(engine.NewSubprocessRunner(nil, 200*time.Millisecond), rec)

	require.NoError(t, m.Start(f.req))
	rec.waitFor(t, func(s Snapshot) bool { return s.DownloadPercent > 0 })

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	started := time.Now()
	m.Cancel()
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.False(t, engine.Alive(pid), "downloader is gone once Cancel returns")

	final := waitDone(t, m)
	assert.Equal(t, StateCancelled, final.State)
	_, err = os.Stat(filepath.Join(f.req.TargetDir, "Portal 2", "depot_621.bin"))
	assert.True(t, os.IsNotExist(err))
}
