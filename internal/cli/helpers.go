package cli

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/install"
	"github.com/jaa/deckload/internal/logging"
	"github.com/jaa/deckload/internal/steamcfg"
)

func loadConfig(app *AppContext) (config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: strings.TrimSpace(app.Opts.ConfigPath),
		WorkingDir:   wd,
	})
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(app *AppContext, cfg config.Config) (*zap.Logger, error) {
	return logging.New(app.IO.ErrOut, cfg.Log.Format, cfg.Log.Level, app.Opts.Verbose)
}

// requestDefaults carries the configured tools and destination into a
// request.
func requestDefaults(cfg config.Config) install.Request {
	return install.Request{
		DownloaderPath: cfg.Tools.Downloader,
		RsyncPath:      cfg.Tools.Rsync,
		Destination:    cfg.Target.Destination,
		TargetDir:      cfg.Target.LibraryDir,
	}
}

func newManager(cfg config.Config, logger *zap.Logger, publisher install.Publisher) *install.Manager {
	return install.New(
		install.WithLogger(logger),
		install.WithPublisher(publisher),
		install.WithThrottle(cfg.Install.Throttle()),
		install.WithKillGrace(cfg.Install.KillGrace()),
		install.WithTempDir(cfg.Install.TempDir),
		install.WithMaxDownloads(cfg.Install.MaxDownloads),
		install.WithLayout(steamcfg.Layout{
			AllowListPath:  cfg.Steam.AllowList,
			ConfigVDFPaths: cfg.Steam.ConfigVDF,
		}),
	)
}

func isTTY(file *os.File) bool {
	stat, err := file.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
