package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/jaa/deckload/internal/exitcode"
	"github.com/jaa/deckload/internal/install"
	"github.com/jaa/deckload/internal/output"
)

func newWatchCommand(app *AppContext) *cobra.Command {
	addr := ""
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow install progress from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := serverAddr(app, addr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), interruptSignals()...)
			defer stop()

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+target+"/ws", nil)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("connect to %s: %w", target, err))
			}
			defer conn.Close()
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()

			var publisher install.Publisher
			flush := func() {}
			if app.Opts.JSON {
				publisher = output.NewEventPublisher(output.NewJSONEmitter(app.IO.Out))
			} else {
				writer := output.NewProgressWriter(app.IO.Out, app.Opts.NoColor)
				publisher = writer
				flush = func() { _ = writer.Flush() }
			}
			defer flush()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("read progress: %w", err))
				}
				var envelope struct {
					Channel string           `json:"channel"`
					Payload install.Snapshot `json:"payload"`
				}
				if err := json.Unmarshal(data, &envelope); err != nil || envelope.Channel != install.ProgressChannel {
					continue
				}
				publisher.Publish(envelope.Payload)
				if envelope.Payload.State.Terminal() {
					flush()
					return installResult(envelope.Payload)
				}
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (overrides server.addr)")
	return cmd
}
