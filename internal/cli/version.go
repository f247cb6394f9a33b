package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version/build metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(app)
			return nil
		},
	}
}

func buildVersion(build BuildInfo) versionInfo {
	info := versionInfo{
		Version:   build.Version,
		Commit:    build.Commit,
		BuildDate: build.Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	return info
}

func printVersion(app *AppContext) {
	info := buildVersion(app.Build)
	if app.Opts.JSON {
		_ = json.NewEncoder(app.IO.Out).Encode(info)
		return
	}
	fmt.Fprintf(app.IO.Out, "deckload version %s\ncommit: %s\nbuild_date: %s\nplatform: %s (%s)\n",
		info.Version, info.Commit, info.BuildDate, info.Platform, info.GoVersion)
}
