package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"os/signal"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaa/deckload/internal/exitcode"
	"github.com/jaa/deckload/internal/install"
	"github.com/jaa/deckload/internal/output"
	"github.com/jaa/deckload/internal/steamcfg"
)

type installFlags struct {
	appID         string
	gameName      string
	depotIDs      []string
	manifestIDs   []string
	manifestFiles []string
	keys          []string
	downloader    string
	rsync         string
	targetDir     string
	local         bool
	remote        bool
	host          string
	port          int
	user          string
	keyPath       string
}

func newInstallCommand(app *AppContext) *cobra.Command {
	flags := installFlags{}

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download a game's depots and install them into a Steam library",
		Example: `  deckload install --app 620 --name "Portal 2" \
    --depot 621 --manifest 7136520924184221406 --manifest-file ./621_7136520924184221406.manifest \
    --key 621:0123abcd...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			req, err := flags.request(cmd, requestDefaults(cfg))
			if err != nil {
				return withExitCode(exitcode.InvalidUsage, err)
			}
			if err := req.Validate(); err != nil {
				return withExitCode(exitcode.InvalidUsage, err)
			}

			if app.Opts.DryRun {
				return printInstallPlan(app, req)
			}

			if _, err := exec.LookPath(req.DownloaderPath); err != nil {
				return withExitCode(exitcode.MissingDependency, fmt.Errorf("downloader not found: %s", req.DownloaderPath))
			}

			logger, err := newLogger(app, cfg)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			defer func() { _ = logger.Sync() }()

			publisher, flush := installPublisher(app)
			manager := newManager(cfg, logger, publisher)

			if app.Opts.JSON {
				_ = output.NewJSONEmitter(app.IO.Out).Emit(output.Event{
					Timestamp: time.Now().UTC(),
					Level:     output.LevelInfo,
					Event:     output.EventInstallStarted,
					Message:   fmt.Sprintf("Installing %s (%s)", req.GameName, req.AppID),
					Details: map[string]any{
						"app_id": req.AppID,
						"depots": len(req.Depots),
						"target": req.Destination.Label(),
					},
				})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), interruptSignals()...)
			defer stop()

			if err := manager.Start(req); err != nil {
				var validation *install.ValidationError
				if errors.As(err, &validation) {
					return withExitCode(exitcode.InvalidUsage, err)
				}
				return withExitCode(exitcode.RuntimeFailure, err)
			}

			watcherDone := make(chan struct{})
			go func() {
				defer close(watcherDone)
				select {
				case <-ctx.Done():
					manager.Cancel()
				case <-manager.Done():
				}
			}()

			final, err := manager.Wait(context.Background())
			<-watcherDone
			flush()
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			return installResult(final)
		},
	}

	cmd.Flags().StringVar(&flags.appID, "app", "", "Steam app id")
	cmd.Flags().StringVar(&flags.gameName, "name", "", "Game title, used for the install folder")
	cmd.Flags().StringArrayVar(&flags.depotIDs, "depot", nil, "Depot id (repeat per depot)")
	cmd.Flags().StringArrayVar(&flags.manifestIDs, "manifest", nil, "Manifest id, in the same order as --depot")
	cmd.Flags().StringArrayVar(&flags.manifestFiles, "manifest-file", nil, "Manifest file path, in the same order as --depot")
	cmd.Flags().StringArrayVar(&flags.keys, "key", nil, "Depot decryption key as DEPOT:HEXKEY (repeatable)")
	cmd.Flags().StringVar(&flags.downloader, "downloader", "", "Path to DepotDownloaderMod (overrides tools.downloader)")
	cmd.Flags().StringVar(&flags.rsync, "rsync", "", "Path to rsync (overrides tools.rsync)")
	cmd.Flags().StringVar(&flags.targetDir, "target-dir", "", "Steam library folder on the destination (overrides target.library_dir)")
	cmd.Flags().BoolVar(&flags.local, "local", false, "Install into this machine's Steam library")
	cmd.Flags().BoolVar(&flags.remote, "remote", false, "Install onto the configured remote device")
	cmd.Flags().StringVar(&flags.host, "host", "", "Remote host (implies --remote)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "Remote SSH port")
	cmd.Flags().StringVar(&flags.user, "user", "", "Remote SSH user")
	cmd.Flags().StringVar(&flags.keyPath, "ssh-key", "", "Private key for the remote user")
	cmd.MarkFlagsMutuallyExclusive("local", "remote")
	cmd.MarkFlagsMutuallyExclusive("local", "host")

	return cmd
}

// request overlays command-line flags on the configured defaults.
func (f installFlags) request(cmd *cobra.Command, req install.Request) (install.Request, error) {
	req.AppID = strings.TrimSpace(f.appID)
	req.GameName = strings.TrimSpace(f.gameName)

	depots, err := install.NewDepots(f.depotIDs, f.manifestIDs, f.manifestFiles)
	if err != nil {
		return install.Request{}, err
	}
	req.Depots = depots

	keys, err := parseDepotKeys(f.keys)
	if err != nil {
		return install.Request{}, err
	}
	req.Keys = keys

	if f.downloader != "" {
		req.DownloaderPath = f.downloader
	}
	if f.rsync != "" {
		req.RsyncPath = f.rsync
	}
	if f.targetDir != "" {
		req.TargetDir = f.targetDir
	}

	switch {
	case f.local:
		req.Destination.Local = true
	case f.remote || f.host != "":
		req.Destination.Local = false
	}
	if f.host != "" {
		req.Destination.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		req.Destination.Port = f.port
	}
	if f.user != "" {
		req.Destination.User = f.user
	}
	if f.keyPath != "" {
		req.Destination.KeyPath = f.keyPath
	}
	return req, nil
}

func parseDepotKeys(raw []string) ([]steamcfg.DepotKey, error) {
	keys := make([]steamcfg.DepotKey, 0, len(raw))
	for _, value := range raw {
		depot, key, ok := strings.Cut(value, ":")
		if !ok || strings.TrimSpace(depot) == "" || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --key %q (expected DEPOT:HEXKEY)", value)
		}
		keys = append(keys, steamcfg.DepotKey{DepotID: strings.TrimSpace(depot), Key: strings.TrimSpace(key)})
	}
	return keys, nil
}

// installPublisher picks how snapshots reach the user. Terminal output is
// queued so a stalled terminal never holds up the install. The returned
// flush delivers what is queued and finishes any in-place progress line.
func installPublisher(app *AppContext) (install.Publisher, func()) {
	var (
		inner  install.Publisher
		finish = func() {}
	)
	switch {
	case app.Opts.JSON:
		inner = output.NewEventPublisher(output.NewJSONEmitter(app.IO.Out))
	case app.Opts.Quiet:
		inner = output.NewEventPublisher(output.NewHumanEmitter(app.IO.Out, app.IO.ErrOut, true, false))
	default:
		writer := output.NewProgressWriter(app.IO.Out, app.Opts.NoColor)
		inner = writer
		finish = func() { _ = writer.Flush() }
	}
	queue := install.NewQueuedPublisher(inner)
	return queue, func() {
		queue.Close()
		finish()
	}
}

func installResult(final install.Snapshot) error {
	switch final.State {
	case install.StateFinished:
		if final.FailedDepots > 0 {
			return withExitCode(exitcode.PartialSuccess, errors.New(final.Message))
		}
		return nil
	case install.StateCancelled:
		return withExitCode(exitcode.Interrupted, errors.New("installation cancelled"))
	case install.StateError:
		return withExitCode(exitcode.InstallFailed, errors.New(final.Message))
	default:
		return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("install ended in unexpected state %q", final.State))
	}
}

type installPlan struct {
	DryRun      bool            `json:"dry_run"`
	AppID       string          `json:"app_id"`
	GameName    string          `json:"game_name"`
	Target      string          `json:"target"`
	InstallPath string          `json:"install_path"`
	Depots      []install.Depot `json:"depots"`
	Keys        int             `json:"keys"`
	Downloader  string          `json:"downloader"`
}

func printInstallPlan(app *AppContext, req install.Request) error {
	plan := installPlan{
		DryRun:      true,
		AppID:       req.AppID,
		GameName:    req.GameName,
		Target:      req.Destination.Label(),
		InstallPath: path.Join(req.TargetDir, steamcfg.FolderName(req.GameName, req.AppID)),
		Depots:      req.Depots,
		Keys:        len(req.Keys),
		Downloader:  req.DownloaderPath,
	}

	if app.Opts.JSON {
		return json.NewEncoder(app.IO.Out).Encode(plan)
	}
	fmt.Fprintf(app.IO.Out, "Plan: install %s (%s) to %s:%s\n", plan.GameName, plan.AppID, plan.Target, plan.InstallPath)
	for i, depot := range plan.Depots {
		fmt.Fprintf(app.IO.Out, "  depot %d/%d: %s manifest %s (%s)\n", i+1, len(plan.Depots), depot.DepotID, depot.ManifestID, depot.ManifestFile)
	}
	fmt.Fprintf(app.IO.Out, "  decryption keys: %d\n", plan.Keys)
	return nil
}
