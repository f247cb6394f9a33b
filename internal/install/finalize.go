package install

import (
	"context"
	"errors"
	"io/fs"
	"path"

	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/steamcfg"
	"github.com/jaa/deckload/internal/target"
)

// finalize registers the game with Steam on the destination. Every step is
// best effort: a failure is logged and the next step still runs, since the
// game files are already in place.
func (m *Manager) finalize(ctx context.Context, r *run) {
	m.setStatus(StateConfiguring, "Updating SLSsteam config...")

	fsys, err := m.openTarget(ctx, r.req.Destination)
	if err != nil {
		r.log.Warn("open destination failed; skipping Steam registration",
			zap.String("destination", r.req.Destination.Label()),
			zap.Error(err),
		)
		return
	}
	defer func() {
		if err := fsys.Close(); err != nil {
			r.log.Debug("close destination failed", zap.Error(err))
		}
	}()

	m.patchFile(ctx, r, fsys, m.layout.AllowListPath, func(content string) string {
		return steamcfg.AddAppToAllowList(content, r.req.AppID, r.req.GameName)
	})

	if len(r.req.Keys) > 0 {
		if vdfPath := m.configVDFPath(ctx, fsys); vdfPath != "" {
			m.patchFile(ctx, r, fsys, vdfPath, func(content string) string {
				return steamcfg.AddDecryptionKeys(content, r.req.Keys)
			})
		}
	}
	if m.cancelled.Load() {
		return
	}

	m.setStatus(StateConfiguring, "Creating Steam manifest...")
	steamapps := steamcfg.SteamappsDir(r.targetDir)
	acfPath := path.Join(steamapps, steamcfg.AppManifestName(r.req.AppID))
	acf := steamcfg.AppManifest(appManifestInfo(r))
	if err := fsys.WriteFile(ctx, acfPath, []byte(acf)); err != nil {
		r.log.Warn("write app manifest failed", zap.String("path", acfPath), zap.Error(err))
	}

	if !r.remote {
		return
	}
	depotcache := steamcfg.DepotcacheDir(r.targetDir)
	for _, manifest := range r.manifests {
		dest := path.Join(depotcache, manifest.name)
		if err := fsys.WriteFile(ctx, dest, manifest.data); err != nil {
			r.log.Warn("upload manifest failed", zap.String("path", dest), zap.Error(err))
		}
	}
}

// configVDFPath returns the first Steam config.vdf that exists on the
// destination, or the first candidate when none does.
func (m *Manager) configVDFPath(ctx context.Context, fsys target.FS) string {
	for _, candidate := range m.layout.ConfigVDFPaths {
		if _, err := fsys.ReadFile(ctx, candidate); err == nil {
			return candidate
		}
	}
	if len(m.layout.ConfigVDFPaths) == 0 {
		return ""
	}
	return m.layout.ConfigVDFPaths[0]
}

// patchFile rewrites a text file through patch. A missing file is patched
// from empty content.
func (m *Manager) patchFile(ctx context.Context, r *run, fsys target.FS, filePath string, patch func(string) string) {
	if filePath == "" {
		return
	}
	current, err := fsys.ReadFile(ctx, filePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("read config failed", zap.String("path", filePath), zap.Error(err))
		return
	}
	missing := err != nil
	updated := patch(string(current))
	if !missing && updated == string(current) {
		r.log.Debug("config already up to date", zap.String("path", filePath))
		return
	}
	if err := fsys.WriteFile(ctx, filePath, []byte(updated)); err != nil {
		r.log.Warn("write config failed", zap.String("path", filePath), zap.Error(err))
		return
	}
	r.log.Info("config updated", zap.String("path", filePath))
}

func appManifestInfo(r *run) steamcfg.AppManifestInfo {
	info := steamcfg.AppManifestInfo{
		AppID:      r.req.AppID,
		Name:       r.req.GameName,
		InstallDir: r.folder,
		SizeOnDisk: r.byteCount,
	}
	for _, depot := range r.req.Depots {
		info.Depots = append(info.Depots, steamcfg.InstalledDepot{
			DepotID:    depot.DepotID,
			ManifestID: depot.ManifestID,
		})
	}
	return info
}
