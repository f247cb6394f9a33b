package install

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaa/deckload/internal/engine"
	"github.com/jaa/deckload/internal/steamcfg"
	"github.com/jaa/deckload/internal/target"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *recorder) Publish(snapshot Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, snapshot)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder) waitFor(t *testing.T, match func(Snapshot) bool) Snapshot {
	t.Helper()
	var found Snapshot
	require.Eventually(t, func() bool {
		for _, s := range r.all() {
			if match(s) {
				found = s
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return found
}

type runFunc func(ctx context.Context, call int, spec engine.ExecSpec, hooks engine.Hooks) engine.ExecResult

type fakeRunner struct {
	mu    sync.Mutex
	specs []engine.ExecSpec
	run   runFunc
}

func (f *fakeRunner) Run(ctx context.Context, spec engine.ExecSpec, hooks engine.Hooks) engine.ExecResult {
	f.mu.Lock()
	call := len(f.specs)
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	return f.run(ctx, call, spec, hooks)
}

func (f *fakeRunner) calls() []engine.ExecSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.ExecSpec(nil), f.specs...)
}

// memFS is an in-memory destination filesystem.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}}
}

func (m *memFS) ReadFile(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}

func (m *memFS) WriteFile(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	m.files[path] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *memFS) Close() error { return nil }

func (m *memFS) get(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	return string(data), ok
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// writeDepotFile simulates a downloader writing one file for the depot.
func writeDepotFile(t *testing.T, spec engine.ExecSpec) {
	t.Helper()
	dir := argValue(spec.Args, "-dir")
	depot := argValue(spec.Args, "-depot")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "depot_"+depot+".bin"), []byte("payload-"+depot), 0o644))
}

type fixture struct {
	root    string
	tempDir string
	layout  steamcfg.Layout
	req     Request
}

func newFixture(t *testing.T, depotIDs ...string) fixture {
	t.Helper()
	root := t.TempDir()
	tempDir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))

	manifestDir := filepath.Join(root, "manifests")
	require.NoError(t, os.MkdirAll(manifestDir, 0o755))
	depots := make([]Depot, 0, len(depotIDs))
	for i, id := range depotIDs {
		manifestID := fmt.Sprintf("%d00%d", i+1, i+1)
		file := filepath.Join(manifestDir, id+"_"+manifestID+".manifest")
		require.NoError(t, os.WriteFile(file, []byte("manifest-"+id), 0o644))
		depots = append(depots, Depot{DepotID: id, ManifestID: manifestID, ManifestFile: file})
	}

	return fixture{
		root:    root,
		tempDir: tempDir,
		layout: steamcfg.Layout{
			AllowListPath:  filepath.Join(root, "SLSsteam", "config.yaml"),
			ConfigVDFPaths: []string{filepath.Join(root, "Steam", "config", "config.vdf")},
		},
		req: Request{
			AppID:          "620",
			GameName:       "Portal 2",
			Depots:         depots,
			Keys:           []steamcfg.DepotKey{{DepotID: depotIDs[0], Key: "deadbeef"}},
			DownloaderPath: "/opt/depotdownloader/DepotDownloaderMod",
			Destination:    target.Destination{Local: true},
			TargetDir:      filepath.Join(root, "steamapps", "common"),
		},
	}
}

func (f fixture) manager(runner engine.ExecRunner, rec Publisher, opts ...Option) *Manager {
	base := []Option{
		WithPublisher(rec),
		WithRunner(runner),
		WithThrottle(0),
		WithKillGrace(200 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
		WithTempDir(f.tempDir),
		WithLayout(f.layout),
		WithLookPath(func(file string) (string, error) { return file, nil }),
	}
	return New(append(base, opts...)...)
}

func waitDone(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snapshot, err := m.Wait(ctx)
	require.NoError(t, err)
	return snapshot
}
