package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/exitcode"
)

type validateResult struct {
	Valid    bool     `json:"valid"`
	Target   string   `json:"target,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func newValidateCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			result := validateResult{Valid: true, Target: cfg.Target.Label()}
			validateErr := config.Validate(cfg)
			if validateErr != nil {
				result.Valid = false
				var problems *config.ValidationError
				if errors.As(validateErr, &problems) {
					result.Problems = problems.Problems
				} else {
					result.Problems = []string{validateErr.Error()}
				}
			}

			if app.Opts.JSON {
				if err := json.NewEncoder(app.IO.Out).Encode(result); err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
			} else if result.Valid {
				fmt.Fprintf(app.IO.Out, "Config is valid (target: %s).\n", result.Target)
			} else {
				for _, problem := range result.Problems {
					fmt.Fprintln(app.IO.ErrOut, "-", problem)
				}
			}

			if validateErr != nil {
				return withExitCode(exitcode.InvalidConfig, fmt.Errorf("config has %d problem(s)", len(result.Problems)))
			}
			return nil
		},
	}
}
