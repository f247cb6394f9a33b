package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaa/deckload/internal/exitcode"
)

func Execute(build BuildInfo, streams IOStreams) int {
	if wd, err := os.Getwd(); err == nil {
		if envErr := loadDotEnvFiles(wd, os.Environ(), os.Setenv); envErr != nil {
			fmt.Fprintln(streams.ErrOut, "WARN:", envErr)
		}
	}

	app := &AppContext{Build: build, IO: streams}
	root := newRootCommand(app)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(streams.ErrOut, "ERROR:", err)
		return mapExitCode(err)
	}
	return exitcode.Success
}

const (
	groupSetup   = "setup"
	groupInstall = "install"
	groupServer  = "server"
)

func newRootCommand(app *AppContext) *cobra.Command {
	showVersion := false

	root := &cobra.Command{
		Use:   "deckload",
		Short: "Install Steam games onto this machine or a Steam Deck",
		Long: "deckload downloads a game's depots with DepotDownloaderMod, copies them into a Steam library " +
			"(locally or over rsync+SSH) and registers the game with Steam and SLSsteam.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(app)
				return nil
			}
			return cmd.Help()
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	defaultConfigPath := os.Getenv("DECKLOAD_CONFIG")
	root.PersistentFlags().StringVarP(&app.Opts.ConfigPath, "config", "c", defaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVar(&app.Opts.JSON, "json", false, "Emit newline-delimited JSON events")
	root.PersistentFlags().BoolVarP(&app.Opts.Quiet, "quiet", "q", false, "Reduce output to errors and summary")
	root.PersistentFlags().BoolVarP(&app.Opts.Verbose, "verbose", "v", false, "Increase diagnostic output")
	root.PersistentFlags().BoolVar(&app.Opts.NoColor, "no-color", false, "Disable color output")
	root.PersistentFlags().BoolVar(&app.Opts.NoInput, "no-input", false, "Disable interactive prompts")
	root.PersistentFlags().BoolVarP(&app.Opts.DryRun, "dry-run", "n", false, "Validate and print the install plan without running tools")
	root.Flags().BoolVar(&showVersion, "version", false, "Print version info")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(exitcode.InvalidUsage, err)
	})

	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
		&cobra.Group{ID: groupInstall, Title: "Installing:"},
		&cobra.Group{ID: groupServer, Title: "Server control:"},
	)
	addGrouped(root, groupSetup,
		newInitCommand(app),
		newValidateCommand(app),
		newDoctorCommand(app),
	)
	addGrouped(root, groupInstall,
		newInstallCommand(app),
		newServeCommand(app),
	)
	addGrouped(root, groupServer,
		newControlCommand(app, "cancel", "Cancel the install running on a server"),
		newControlCommand(app, "pause", "Pause the download running on a server"),
		newControlCommand(app, "resume", "Resume a paused download on a server"),
		newStatusCommand(app),
		newWatchCommand(app),
	)
	root.AddCommand(newVersionCommand(app))

	return root
}

func addGrouped(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.GroupID = group
		root.AddCommand(cmd)
	}
}
