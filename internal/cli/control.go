package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaa/deckload/internal/exitcode"
	"github.com/jaa/deckload/internal/install"
	"github.com/jaa/deckload/internal/output"
)

const controlTimeout = 10 * time.Second

// serverAddr resolves the address of a running "deckload serve".
func serverAddr(app *AppContext, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := loadConfig(app)
	if err != nil {
		return "", withExitCode(exitcode.InvalidConfig, err)
	}
	return cfg.Server.Addr, nil
}

func newControlCommand(app *AppContext, action string, short string) *cobra.Command {
	addr := ""
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := serverAddr(app, addr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
			defer cancel()

			url := "http://" + target + "/api/install/" + action
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("reach deckload server at %s: %w", target, err))
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				return withExitCode(exitcode.RuntimeFailure, responseError(resp))
			}
			if !app.Opts.Quiet && !app.Opts.JSON {
				fmt.Fprintf(app.IO.Out, "Sent %s.\n", action)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (overrides server.addr)")
	return cmd
}

func newStatusCommand(app *AppContext) *cobra.Command {
	addr := ""
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current install snapshot from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := serverAddr(app, addr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+target+"/api/install", nil)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("reach deckload server at %s: %w", target, err))
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return withExitCode(exitcode.RuntimeFailure, responseError(resp))
			}

			var snapshot install.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("decode snapshot: %w", err))
			}
			if app.Opts.JSON {
				return json.NewEncoder(app.IO.Out).Encode(snapshot)
			}
			writer := output.NewProgressWriterWithOptions(app.IO.Out, output.ProgressOptions{})
			writer.Publish(snapshot)
			return writer.Flush()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (overrides server.addr)")
	return cmd
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
