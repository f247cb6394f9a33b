package cli

import (
	"fmt"
	"net"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/exitcode"
	"github.com/jaa/deckload/internal/install"
	"github.com/jaa/deckload/internal/output"
	"github.com/jaa/deckload/internal/server"
)

func newServeCommand(app *AppContext) *cobra.Command {
	addr := ""

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the install API and progress websocket for a desktop UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			logger, err := newLogger(app, cfg)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			defer func() { _ = logger.Sync() }()

			hub := server.NewHub(logger.Named("hub"))
			publishers := []install.Publisher{hub}
			if app.Opts.JSON {
				events := install.NewQueuedPublisher(output.NewEventPublisher(output.NewJSONEmitter(app.IO.Out)))
				defer events.Close()
				publishers = append(publishers, events)
			}
			manager := newManager(cfg, logger.Named("install"), install.NewMultiPublisher(publishers...))

			srv := server.New(manager, hub, server.Options{
				Logger:   logger.Named("server"),
				Defaults: requestDefaults(cfg),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), interruptSignals()...)
			defer stop()

			ready := func(bound net.Addr) {
				if app.Opts.JSON {
					_ = output.NewJSONEmitter(app.IO.Out).Emit(output.Event{
						Timestamp: time.Now().UTC(),
						Level:     output.LevelInfo,
						Event:     output.EventServerStarted,
						Message:   "listening on " + bound.String(),
						Details:   map[string]any{"addr": bound.String()},
					})
					return
				}
				if !app.Opts.Quiet {
					fmt.Fprintf(app.IO.Out, "Listening on http://%s (websocket: ws://%s/ws)\n", bound, bound)
				}
			}

			if err := srv.ListenAndServe(ctx, addr, ready); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}

			if manager.Running() {
				logger.Info("cancelling active install before exit")
				manager.Cancel()
				<-manager.Done()
			}
			logger.Debug("server stopped", zap.String("addr", addr))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
