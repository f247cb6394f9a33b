package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/engine"
	"github.com/jaa/deckload/internal/fileops"
	"github.com/jaa/deckload/internal/steamcfg"
	"github.com/jaa/deckload/internal/target"
)

// run carries the per-install working state of the worker goroutine.
type run struct {
	id          string
	req         Request
	log         *zap.Logger
	remote      bool
	folder      string
	targetDir   string
	downloadDir string
	keysFile    string

	downloadStartedAt time.Time
	failedDepots      int
	manifests         []stagedManifest
	fileCount         int
	byteCount         int64
}

type stagedManifest struct {
	name string
	data []byte
}

// prepare creates the download directory and writes the keys file. Remote
// installs stage into a fresh directory under the temp root.
func (m *Manager) prepare(req Request, runID string) (*run, error) {
	r := &run{
		id:     runID,
		req:    req,
		log:    m.logger.With(zap.String("run_id", runID), zap.String("app_id", req.AppID)),
		remote: req.remote(),
		folder: steamcfg.FolderName(req.GameName, req.AppID),
	}

	if r.remote {
		r.targetDir = req.TargetDir
		r.downloadDir = filepath.Join(m.tempDir, "deckload_install_"+req.AppID)
		if err := os.RemoveAll(r.downloadDir); err != nil {
			return nil, fmt.Errorf("clear staging directory %s: %w", r.downloadDir, err)
		}
	} else {
		resolved, err := target.NewLocal().Resolve(req.TargetDir)
		if err != nil {
			return nil, fmt.Errorf("resolve target directory: %w", err)
		}
		r.targetDir = resolved
		r.downloadDir = filepath.Join(resolved, r.folder)
	}
	if err := os.MkdirAll(r.downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory %s: %w", r.downloadDir, err)
	}

	r.keysFile = keysFilePath(m.tempDir, req.AppID)
	if err := fileops.WriteFileAtomic(r.keysFile, steamcfg.DepotKeysFile(req.Keys), 0o600); err != nil {
		return nil, fmt.Errorf("write depot keys: %w", err)
	}
	return r, nil
}

func (m *Manager) execute(ctx context.Context, r *run) {
	if !m.download(ctx, r) {
		return
	}
	if !m.stageManifests(ctx, r) {
		return
	}
	m.countFiles(r)
	if !m.transfer(ctx, r) {
		return
	}
	if !m.cancelled.Load() {
		m.finalize(ctx, r)
	}
	m.finish(r)
}

// download runs the downloader once per depot. A depot that fails is logged
// and skipped; one interrupted by Pause is retried after Resume.
func (m *Manager) download(ctx context.Context, r *run) bool {
	if r.remote {
		m.setStatus(StateDownloading, "Downloading to temp...")
	} else {
		m.setStatus(StateDownloading, "Downloading to Steam library...")
	}
	r.downloadStartedAt = m.now()

	total := len(r.req.Depots)
	for i := 0; i < total; {
		if !m.waitWhilePaused(ctx) {
			return false
		}
		depot := r.req.Depots[i]
		m.setStatus(StateDownloading, fmt.Sprintf("Downloading depot %d/%d (ID: %s)", i+1, total, depot.DepotID))

		index := i
		pauses := m.pauseCount()
		result := m.runner.Run(ctx, m.downloaderSpec(r, depot), engine.Hooks{
			Started: m.trackProcess,
			Exited:  m.procs.clear,
			Line: func(line string) bool {
				return m.onDownloadLine(r, index, total, line)
			},
		})

		if m.cancelled.Load() {
			return false
		}
		if result.ExitCode != 0 && (m.paused.Load() || m.pauseCount() != pauses) {
			r.log.Info("depot interrupted by pause", zap.String("depot", depot.DepotID))
			continue
		}
		if result.ExitCode != 0 {
			r.failedDepots++
			r.log.Warn("depot download failed",
				zap.String("depot", depot.DepotID),
				zap.Int("exit_code", result.ExitCode),
				zap.Error(result.Err),
				zap.String("stderr", result.StderrTail),
			)
		} else {
			r.log.Info("depot downloaded", zap.String("depot", depot.DepotID), zap.Duration("duration", result.Duration))
		}
		i++
	}

	m.setStatus(StateDownloading, "Download complete!")
	ceiling := 100.0
	if r.remote {
		ceiling = 50
	}
	m.updateDownload(ceiling, "")
	return true
}

// trackProcess records a freshly started tool. A Cancel or Pause that raced
// the spawn found nothing to signal, so the tool is stopped here instead.
func (m *Manager) trackProcess(pid int) {
	m.procs.set(pid)
	if m.cancelled.Load() || m.paused.Load() {
		if _, err := m.procs.terminate(m.killGrace); err != nil {
			m.logger.Warn("terminate tool failed", zap.Int("pid", pid), zap.Error(err))
		}
	}
}

func (m *Manager) downloaderSpec(r *run, depot Depot) engine.ExecSpec {
	return engine.ExecSpec{
		Bin: r.req.DownloaderPath,
		Args: []string{
			"-app", r.req.AppID,
			"-depot", depot.DepotID,
			"-manifest", depot.ManifestID,
			"-manifestfile", depot.ManifestFile,
			"-depotkeys", r.keysFile,
			"-max-downloads", strconv.Itoa(m.maxDownloads),
			"-dir", r.downloadDir,
			"-validate",
		},
		DisplayCommand: fmt.Sprintf("%s -app %s -depot %s", filepath.Base(r.req.DownloaderPath), r.req.AppID, depot.DepotID),
	}
}

func (m *Manager) onDownloadLine(r *run, index int, total int, line string) bool {
	if m.cancelled.Load() || m.paused.Load() {
		return false
	}
	r.log.Debug("downloader", zap.String("line", line))
	if percent, ok := ParsePercent(line); ok {
		overall := OverallPercent(index, total, percent, false)
		eta := FormatETA(m.now().Sub(r.downloadStartedAt), overall)
		if r.remote {
			overall = OverallPercent(index, total, percent, true)
		}
		m.updateDownload(overall, eta)
	}
	if speed, ok := ParseSpeed(line); ok {
		m.updateSpeed(speed)
	}
	return true
}

// stageManifests reads each depot's manifest. Local installs place them in
// the library's depotcache now; remote ones upload them while finalizing.
func (m *Manager) stageManifests(ctx context.Context, r *run) bool {
	if !m.advance(ctx, StateConfiguring, "Copying manifest files to depotcache...") {
		return false
	}
	for _, depot := range r.req.Depots {
		data, err := os.ReadFile(depot.ManifestFile)
		if err != nil {
			r.log.Warn("read manifest failed", zap.String("depot", depot.DepotID), zap.Error(err))
			continue
		}
		r.manifests = append(r.manifests, stagedManifest{name: filepath.Base(depot.ManifestFile), data: data})
	}
	if r.remote {
		return !m.cancelled.Load()
	}

	depotcache := filepath.FromSlash(steamcfg.DepotcacheDir(filepath.ToSlash(r.targetDir)))
	for _, manifest := range r.manifests {
		dest := filepath.Join(depotcache, manifest.name)
		if err := fileops.WriteFileAtomic(dest, manifest.data, 0o644); err != nil {
			r.log.Warn("copy manifest failed", zap.String("path", dest), zap.Error(err))
		}
	}
	return !m.cancelled.Load()
}

func (m *Manager) countFiles(r *run) {
	files, bytes, err := fileops.CountFiles(r.downloadDir)
	if err != nil {
		r.log.Warn("count downloaded files failed", zap.String("dir", r.downloadDir), zap.Error(err))
	}
	r.fileCount = files
	r.byteCount = bytes
	m.setTotals(files, bytes)
}

func (m *Manager) finish(r *run) {
	if m.cancelled.Load() {
		return
	}
	message := "Installation complete!"
	if r.failedDepots > 0 {
		message = fmt.Sprintf("Installation complete! (%d of %d depots failed)", r.failedDepots, len(r.req.Depots))
		m.mu.Lock()
		m.progress.FailedDepots = r.failedDepots
		m.mu.Unlock()
	}
	m.setStatus(StateFinished, message)

	if r.remote {
		if err := os.RemoveAll(r.downloadDir); err != nil {
			r.log.Warn("remove staging directory failed", zap.String("dir", r.downloadDir), zap.Error(err))
		}
	}
}
