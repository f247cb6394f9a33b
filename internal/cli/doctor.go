package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/doctor"
	"github.com/jaa/deckload/internal/exitcode"
)

var severityRank = map[doctor.Severity]int{
	doctor.SeverityError: 0,
	doctor.SeverityWarn:  1,
	doctor.SeverityInfo:  2,
}

func newDoctorCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, target access and library readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			if err := config.Validate(cfg); err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			report := doctor.NewChecker().Check(cmd.Context(), cfg)
			if app.Opts.JSON {
				if err := json.NewEncoder(app.IO.Out).Encode(report); err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
			} else {
				printDoctorReport(app, cfg, report)
			}

			if report.HasErrors() {
				return withExitCode(exitcode.MissingDependency, fmt.Errorf("doctor found %d error(s)", report.ErrorCount()))
			}
			return nil
		},
	}
}

func printDoctorReport(app *AppContext, cfg config.Config, report doctor.Report) {
	checks := append([]doctor.Check{}, report.Checks...)
	sort.SliceStable(checks, func(i, j int) bool {
		if severityRank[checks[i].Severity] != severityRank[checks[j].Severity] {
			return severityRank[checks[i].Severity] < severityRank[checks[j].Severity]
		}
		return checks[i].Name < checks[j].Name
	})

	warnings := 0
	for _, check := range checks {
		if check.Severity == doctor.SeverityWarn {
			warnings++
		}
		if app.Opts.Quiet && check.Severity == doctor.SeverityInfo {
			continue
		}
		fmt.Fprintf(app.IO.Out, "[%s] %s: %s\n", check.Severity, check.Name, check.Message)
	}
	fmt.Fprintf(app.IO.Out, "Target %s: %d error(s), %d warning(s)\n", cfg.Target.Label(), report.ErrorCount(), warnings)
}
