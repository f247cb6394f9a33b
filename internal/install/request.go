package install

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jaa/deckload/internal/steamcfg"
	"github.com/jaa/deckload/internal/target"
)

var ErrAlreadyRunning = errors.New("an installation is already running")

// Depot is one content unit to download with its own manifest.
type Depot struct {
	DepotID      string `json:"depot_id"`
	ManifestID   string `json:"manifest_id"`
	ManifestFile string `json:"manifest_file"`
}

// NewDepots zips parallel id, manifest and manifest-file lists.
func NewDepots(ids []string, manifests []string, files []string) ([]Depot, error) {
	if len(ids) != len(manifests) || len(ids) != len(files) {
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("input arrays lengths mismatch: %d depots, %d manifests, %d manifest files", len(ids), len(manifests), len(files)),
		}}
	}
	depots := make([]Depot, 0, len(ids))
	for i := range ids {
		depots = append(depots, Depot{
			DepotID:      strings.TrimSpace(ids[i]),
			ManifestID:   strings.TrimSpace(manifests[i]),
			ManifestFile: strings.TrimSpace(files[i]),
		})
	}
	return depots, nil
}

// Request describes one install run.
type Request struct {
	AppID          string              `json:"app_id"`
	GameName       string              `json:"game_name"`
	Depots         []Depot             `json:"depots"`
	Keys           []steamcfg.DepotKey `json:"keys"`
	DownloaderPath string              `json:"downloader_path"`
	// RsyncPath overrides rsync discovery for remote installs.
	RsyncPath   string             `json:"rsync_path,omitempty"`
	Destination target.Destination `json:"destination"`
	// TargetDir is the library folder games are installed into, usually
	// ".../steamapps/common" on the destination.
	TargetDir string `json:"target_dir"`
}

func (r Request) remote() bool {
	return !r.Destination.Local
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid install request"
	}
	return fmt.Sprintf("invalid install request: %s", strings.Join(e.Problems, "; "))
}

// Validate checks everything that can be checked before the worker starts.
func (r Request) Validate() error {
	problems := []string{}

	if !isNumeric(r.AppID) {
		problems = append(problems, "app_id must be a numeric Steam app id")
	}
	if len(r.Depots) == 0 {
		problems = append(problems, "at least one depot is required")
	}
	for i, depot := range r.Depots {
		if !isNumeric(depot.DepotID) {
			problems = append(problems, fmt.Sprintf("depot %d: depot_id must be numeric", i+1))
		}
		if strings.TrimSpace(depot.ManifestID) == "" {
			problems = append(problems, fmt.Sprintf("depot %d: manifest_id must be set", i+1))
		}
		if strings.TrimSpace(depot.ManifestFile) == "" {
			problems = append(problems, fmt.Sprintf("depot %d: manifest_file must be set", i+1))
		}
	}
	for i, key := range r.Keys {
		if !isNumeric(key.DepotID) || strings.TrimSpace(key.Key) == "" {
			problems = append(problems, fmt.Sprintf("key %d: depot id and key are required", i+1))
		}
	}
	if strings.TrimSpace(r.DownloaderPath) == "" {
		problems = append(problems, "downloader path must be set")
	}
	if strings.TrimSpace(r.TargetDir) == "" {
		problems = append(problems, "target directory must be set")
	}
	problems = append(problems, r.Destination.Problems()...)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isNumeric(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
