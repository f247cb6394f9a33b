package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/exitcode"
	"github.com/spf13/cobra"
)

type initFlags struct {
	force bool
	print bool
	local bool
	host  string
	user  string
}

func newInitCommand(app *AppContext) *cobra.Command {
	flags := initFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config for a local or remote Steam target",
		RunE: func(cmd *cobra.Command, args []string) error {
			template := config.Template(config.TemplateOptions{
				Local: flags.local,
				Host:  flags.host,
				User:  flags.user,
			})
			if flags.print {
				_, err := fmt.Fprint(app.IO.Out, template)
				return err
			}

			path, err := initConfigPath(app)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			proceed, err := confirmOverwrite(app, path, flags.force)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			if !proceed {
				fmt.Fprintln(app.IO.Out, "Initialization canceled.")
				return nil
			}

			if err := config.EnsureConfigDir(path); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("write config file: %w", err))
			}

			cfg, err := config.Load(config.LoadOptions{ExplicitPath: path})
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, fmt.Errorf("reload written config: %w", err))
			}
			stagingDir, err := config.ExpandPath(cfg.Install.TempDir)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("resolve staging directory: %w", err))
			}
			if err := os.MkdirAll(stagingDir, 0o755); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("create staging directory %s: %w", stagingDir, err))
			}

			fmt.Fprintf(app.IO.Out, "Wrote config: %s\n", path)
			fmt.Fprintf(app.IO.Out, "Ensured staging dir: %s\n", stagingDir)
			if cfg.Target.Local {
				fmt.Fprintf(app.IO.Out, "Target: local library %s\n", cfg.Target.LibraryDir)
			} else {
				fmt.Fprintf(app.IO.Out, "Target: %s@%s:%d (run `deckload doctor` to check SSH access)\n", cfg.Target.User, cfg.Target.Host, cfg.Target.Port)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&flags.print, "print", false, "Print the template to stdout instead of writing it")
	cmd.Flags().BoolVar(&flags.local, "local", false, "Install into this machine's Steam library")
	cmd.Flags().StringVar(&flags.host, "host", "", "Remote Steam Deck host name or address")
	cmd.Flags().StringVar(&flags.user, "user", "", "Remote SSH user")
	cmd.MarkFlagsMutuallyExclusive("local", "host")
	cmd.MarkFlagsMutuallyExclusive("local", "user")
	return cmd
}

func initConfigPath(app *AppContext) (string, error) {
	if path := strings.TrimSpace(app.Opts.ConfigPath); path != "" {
		return path, nil
	}
	return config.UserConfigPath()
}

func confirmOverwrite(app *AppContext, path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err != nil || force {
		return true, nil
	}
	if app.Opts.NoInput || !isTTY(os.Stdin) {
		return false, fmt.Errorf("config already exists at %s (rerun with --force)", path)
	}
	return promptYesNo(app, fmt.Sprintf("Config already exists at %s. Overwrite?", path))
}

func promptYesNo(app *AppContext, prompt string) (bool, error) {
	fmt.Fprintf(app.IO.Out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(app.IO.In).ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
