// Package install runs a game install as a background pipeline: download
// each depot, copy manifests, transfer to a remote destination when needed,
// and patch Steam's configuration. Progress is published as Snapshots.
package install

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/engine"
	"github.com/jaa/deckload/internal/steamcfg"
	"github.com/jaa/deckload/internal/target"
)

const (
	DefaultThrottle     = 100 * time.Millisecond
	DefaultKillGrace    = engine.DefaultKillGrace
	DefaultMaxDownloads = 25
	defaultPollInterval = 100 * time.Millisecond
)

// Manager owns the state of the single install run a process may have in
// flight. Create one with New and share it; Start, Cancel, Pause, Resume and
// Snapshot are safe to call from any goroutine.
type Manager struct {
	logger       *zap.Logger
	publisher    Publisher
	runner       engine.ExecRunner
	openTarget   target.Opener
	layout       steamcfg.Layout
	lookPath     func(string) (string, error)
	readVersion  func(context.Context, string) (string, error)
	now          func() time.Time
	throttle     time.Duration
	killGrace    time.Duration
	pollInterval time.Duration
	tempDir      string
	maxDownloads int

	running   atomic.Bool
	cancelled atomic.Bool
	paused    atomic.Bool
	procs     processRegistry

	mu       sync.Mutex
	progress Snapshot
	pauses   uint64

	emitMu   sync.Mutex
	lastEmit time.Time

	runMu     sync.Mutex
	cancelRun context.CancelFunc
	done      chan struct{}
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(m *Manager) {
		if publisher != nil {
			m.publisher = publisher
		}
	}
}

// WithThrottle sets the minimum gap between numeric progress publishes.
// Zero publishes every update.
func WithThrottle(interval time.Duration) Option {
	return func(m *Manager) {
		if interval >= 0 {
			m.throttle = interval
		}
	}
}

// WithKillGrace sets how long a tool gets to exit after the polite signal
// before it is killed.
func WithKillGrace(grace time.Duration) Option {
	return func(m *Manager) {
		if grace > 0 {
			m.killGrace = grace
		}
	}
}

func WithRunner(runner engine.ExecRunner) Option {
	return func(m *Manager) { m.runner = runner }
}

func WithTargetOpener(opener target.Opener) Option {
	return func(m *Manager) { m.openTarget = opener }
}

func WithLayout(layout steamcfg.Layout) Option {
	return func(m *Manager) { m.layout = layout }
}

// WithTempDir sets where remote installs are staged and keys files written.
func WithTempDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.tempDir = dir
		}
	}
}

func WithMaxDownloads(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDownloads = n
		}
	}
}

func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(m *Manager) {
		if lookPath != nil {
			m.lookPath = lookPath
		}
	}
}

// WithVersionProbe replaces how a tool's "--version" output is read.
func WithVersionProbe(probe func(ctx context.Context, bin string) (string, error)) Option {
	return func(m *Manager) {
		if probe != nil {
			m.readVersion = probe
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

func New(opts ...Option) *Manager {
	m := &Manager{
		logger:       zap.NewNop(),
		publisher:    nopPublisher{},
		layout:       steamcfg.DefaultLayout(),
		lookPath:     exec.LookPath,
		readVersion:  readToolVersion,
		now:          time.Now,
		throttle:     DefaultThrottle,
		killGrace:    DefaultKillGrace,
		pollInterval: defaultPollInterval,
		tempDir:      defaultTempDir(),
		maxDownloads: DefaultMaxDownloads,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = engine.NewSubprocessRunner(m.logger, m.killGrace)
	}
	if m.openTarget == nil {
		m.openTarget = target.NewOpener(m.logger)
	}
	m.progress = Snapshot{State: StateIdle}
	closed := make(chan struct{})
	close(closed)
	m.done = closed
	return m
}

// defaultTempDir prefers /var/tmp, which lives on disk, over a tmpfs /tmp:
// staged games are far larger than RAM.
func defaultTempDir() string {
	if runtime.GOOS != "windows" {
		if info, err := os.Stat("/var/tmp"); err == nil && info.IsDir() {
			return "/var/tmp"
		}
	}
	return os.TempDir()
}

// Start validates req, prepares the download directory and keys file, and
// launches the pipeline in the background. It returns ErrAlreadyRunning
// while another run is in flight.
func (m *Manager) Start(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := m.lookPath(req.DownloaderPath); err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("downloader not found: %v", err)}}
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runID := uuid.NewString()
	m.reset(runID)

	r, err := m.prepare(req, runID)
	if err != nil {
		m.running.Store(false)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.runMu.Lock()
	m.cancelRun = cancel
	m.done = done
	m.runMu.Unlock()

	r.log.Info("install started",
		zap.String("app_id", req.AppID),
		zap.String("game", req.GameName),
		zap.Int("depots", len(req.Depots)),
		zap.Bool("remote", r.remote),
		zap.String("download_dir", r.downloadDir),
	)
	go m.work(ctx, cancel, r, done)
	return nil
}

// Cancel stops the run: the flag is raised, the running tool is signalled,
// given a grace period and killed, and a Cancelled snapshot is published.
// Nothing else is published for the run afterwards. No-op when idle.
func (m *Manager) Cancel() {
	m.mu.Lock()
	if !m.running.Load() || m.progress.State.Terminal() {
		m.mu.Unlock()
		return
	}
	m.cancelled.Store(true)
	m.mu.Unlock()

	if pid, err := m.procs.terminate(m.killGrace); err != nil {
		m.logger.Warn("terminate tool failed", zap.Int("pid", pid), zap.Error(err))
	}
	m.runMu.Lock()
	cancel := m.cancelRun
	m.runMu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	m.progress.State = StateCancelled
	m.progress.Message = "Installation cancelled by user"
	m.mu.Unlock()
	m.logger.Info("install cancelled")
	m.emit(true)
}

// Pause stops the running download tool. The worker waits until Resume and
// then restarts the interrupted depot; the downloader's validate pass picks
// up the partial files. Only a run in the Downloading state can be paused.
func (m *Manager) Pause() {
	m.mu.Lock()
	if !m.running.Load() || m.cancelled.Load() || m.progress.State != StateDownloading {
		m.mu.Unlock()
		return
	}
	m.paused.Store(true)
	m.pauses++
	m.progress.State = StatePaused
	m.progress.Message = "Installation paused"
	m.mu.Unlock()

	if pid, err := m.procs.terminate(m.killGrace); err != nil {
		m.logger.Warn("terminate tool failed", zap.Int("pid", pid), zap.Error(err))
	}
	m.logger.Info("install paused")
	m.emit(true)
}

func (m *Manager) Resume() {
	m.mu.Lock()
	if m.cancelled.Load() || !m.paused.Load() {
		m.mu.Unlock()
		return
	}
	m.paused.Store(false)
	m.progress.State = StateDownloading
	m.progress.Message = "Resuming download..."
	m.mu.Unlock()
	m.logger.Info("install resumed")
	m.emit(true)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

func (m *Manager) Running() bool {
	return m.running.Load()
}

// Done is closed when the current run's worker has exited. With no run it
// is already closed.
func (m *Manager) Done() <-chan struct{} {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.done
}

// Wait blocks until the current run ends or ctx is done, then returns the
// final snapshot.
func (m *Manager) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-m.Done():
		return m.Snapshot(), nil
	case <-ctx.Done():
		return m.Snapshot(), ctx.Err()
	}
}

func (m *Manager) reset(runID string) {
	m.cancelled.Store(false)
	m.paused.Store(false)
	m.procs.set(0)

	m.mu.Lock()
	m.progress = idleSnapshot(runID)
	m.pauses = 0
	m.mu.Unlock()

	m.emitMu.Lock()
	m.lastEmit = time.Time{}
	m.emitMu.Unlock()
}

func (m *Manager) work(ctx context.Context, cancel context.CancelFunc, r *run, done chan struct{}) {
	defer close(done)
	defer m.running.Store(false)
	defer cancel()
	defer func() {
		if err := os.Remove(r.keysFile); err != nil && !os.IsNotExist(err) {
			r.log.Debug("remove keys file failed", zap.Error(err))
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("install worker panicked", zap.Any("panic", rec), zap.Stack("stack"))
			m.setStatus(StateError, fmt.Sprintf("Internal error: %v", rec))
		}
	}()

	m.execute(ctx, r)

	final := m.Snapshot()
	r.log.Info("install ended", zap.String("state", string(final.State)), zap.String("message", final.Message))
}

// setStatus records a state transition and publishes it immediately. After
// Cancel only the Cancelled state is accepted, and a paused run stays
// paused until Resume.
func (m *Manager) setStatus(state State, message string) {
	m.mu.Lock()
	if !m.acceptsLocked(state) {
		m.mu.Unlock()
		return
	}
	m.progress.State = state
	m.progress.Message = message
	m.mu.Unlock()
	m.emit(true)
}

func (m *Manager) acceptsLocked(state State) bool {
	if m.cancelled.Load() {
		return state == StateCancelled
	}
	if m.paused.Load() && state == StateDownloading {
		return false
	}
	return true
}

// emit publishes the current snapshot. Forced publishes always go out and
// restart the throttle window; others are dropped inside the window. The
// snapshot itself is already updated either way.
func (m *Manager) emit(force bool) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	now := m.now()
	if !force && m.throttle > 0 && !m.lastEmit.IsZero() && now.Sub(m.lastEmit) < m.throttle {
		return
	}
	snapshot := m.Snapshot()
	if m.cancelled.Load() && snapshot.State != StateCancelled {
		return
	}
	m.lastEmit = now
	m.publisher.Publish(snapshot)
}

func (m *Manager) updateDownload(percent float64, eta string) {
	m.mu.Lock()
	if percent > m.progress.DownloadPercent {
		m.progress.DownloadPercent = percent
	}
	if eta != "" {
		m.progress.ETA = eta
	}
	m.mu.Unlock()
	m.emit(false)
}

func (m *Manager) updateSpeed(speed string) {
	m.mu.Lock()
	m.progress.DownloadSpeed = speed
	m.mu.Unlock()
	m.emit(false)
}

func (m *Manager) setTotals(files int, bytes int64) {
	m.mu.Lock()
	m.progress.FilesTotal = files
	m.progress.BytesTotal = bytes
	m.mu.Unlock()
	m.emit(true)
}

func (m *Manager) updateTransfer(p TransferProgress, remote bool) {
	m.mu.Lock()
	if p.HasCount {
		m.progress.FilesTransferred = p.Done()
		m.progress.FilesTotal = p.Total
		percent := 100.0
		if remote {
			percent = TransferPercent(p.Done(), p.Total)
		}
		if percent > m.progress.DownloadPercent {
			m.progress.DownloadPercent = percent
		}
	}
	if p.Speed != "" {
		m.progress.TransferSpeed = p.Speed
	}
	if p.HasBytes && p.Bytes > m.progress.BytesTransferred {
		m.progress.BytesTransferred = p.Bytes
	}
	m.mu.Unlock()
	m.emit(false)
}

// completeTransfer marks every file as placed and fills the bar.
func (m *Manager) completeTransfer(files int, bytes int64, speed string) {
	m.mu.Lock()
	m.progress.FilesTotal = files
	m.progress.FilesTransferred = files
	m.progress.BytesTransferred = bytes
	m.progress.TransferSpeed = speed
	m.progress.DownloadPercent = 100
	m.mu.Unlock()
	m.emit(true)
}

// pauseCount returns how many times the current run has been paused. A
// change across a tool run means Pause stopped it, even if Resume has
// already cleared the flag.
func (m *Manager) pauseCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses
}

// waitWhilePaused blocks while the run is paused. It returns false once the
// run is cancelled.
func (m *Manager) waitWhilePaused(ctx context.Context) bool {
	for m.paused.Load() && !m.cancelled.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.pollInterval):
		}
	}
	return !m.cancelled.Load()
}

// advance leaves the download phase for state. The pause check and the
// transition happen under one lock so a Pause cannot slip in between and be
// lost once the run is no longer Downloading.
func (m *Manager) advance(ctx context.Context, state State, message string) bool {
	for {
		if !m.waitWhilePaused(ctx) {
			return false
		}
		m.mu.Lock()
		if m.paused.Load() {
			m.mu.Unlock()
			continue
		}
		if m.cancelled.Load() {
			m.mu.Unlock()
			return false
		}
		m.progress.State = state
		m.progress.Message = message
		m.mu.Unlock()
		m.emit(true)
		return true
	}
}

func readToolVersion(ctx context.Context, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "--version").CombinedOutput()
	if err != nil {
		return string(out), err
	}
	return string(out), nil
}

func keysFilePath(dir string, appID string) string {
	return filepath.Join(dir, fmt.Sprintf("deckload_keys_%s.txt", appID))
}
