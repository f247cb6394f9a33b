package doctor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/target"
	"github.com/jaa/deckload/internal/version"
)

// progress2Version is the first rsync release with --info=progress2.
const progress2Version = "3.1.0"

var rsyncCandidates = []string{"/opt/homebrew/bin/rsync", "/usr/local/bin/rsync"}

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

type Check struct {
	Severity Severity `json:"severity"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

func (r Report) HasErrors() bool {
	return r.ErrorCount() > 0
}

func (r Report) ErrorCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Severity == SeverityError {
			count++
		}
	}
	return count
}

func (r *Report) add(severity Severity, name string, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Severity: severity, Name: name, Message: fmt.Sprintf(format, args...)})
}

type Checker struct {
	LookPath      func(string) (string, error)
	ReadVersion   func(context.Context, string) (string, error)
	Getenv        func(string) string
	CheckWritable func(string) error
	Stat          func(string) (fs.FileInfo, error)
	Probe         func(context.Context, target.Destination) error
}

func NewChecker() *Checker {
	return &Checker{
		LookPath:      exec.LookPath,
		ReadVersion:   defaultReadVersion,
		Getenv:        os.Getenv,
		CheckWritable: checkDirWritable,
		Stat:          os.Stat,
		Probe:         probeLogin,
	}
}

func (c *Checker) Check(ctx context.Context, cfg config.Config) Report {
	report := Report{Checks: []Check{}}
	remote := !cfg.Target.Local

	c.checkDownloader(&report, cfg)
	if remote {
		c.checkRsync(ctx, &report, cfg)
		c.checkAuth(&report, cfg)
		if err := c.Probe(ctx, cfg.Target.Destination); err != nil {
			report.add(SeverityError, "target", "%v", err)
		} else {
			report.add(SeverityInfo, "target", "%s accepts SSH logins", cfg.Target.Address())
		}
	}
	c.checkFilesystem(&report, cfg)
	return report
}

func (c *Checker) checkDownloader(report *Report, cfg config.Config) {
	binary := strings.TrimSpace(cfg.Tools.Downloader)
	if binary == "" {
		report.add(SeverityError, "dependency", "tools.downloader is not configured")
		return
	}
	location, err := c.LookPath(binary)
	if err != nil {
		report.add(SeverityError, "dependency", "%s not found in PATH", binary)
		return
	}
	report.add(SeverityInfo, "dependency", "%s found at %s", binary, location)
}

func (c *Checker) checkRsync(ctx context.Context, report *Report, cfg config.Config) {
	binary := c.resolveRsync(cfg.Tools.Rsync)
	location, err := c.LookPath(binary)
	if err != nil {
		report.add(SeverityError, "dependency", "%s not found; remote installs need rsync", binary)
		return
	}
	report.add(SeverityInfo, "dependency", "rsync found at %s", location)

	output, err := c.ReadVersion(ctx, location)
	if err != nil {
		report.add(SeverityWarn, "dependency", "rsync version could not be read: %v", err)
		return
	}
	found, err := version.Extract(output)
	if err != nil {
		report.add(SeverityWarn, "dependency", "rsync version output is unrecognized: %q", strings.TrimSpace(output))
		return
	}
	if version.Compare(found, progress2Version) < 0 {
		report.add(SeverityWarn, "dependency", "rsync %s is below %s; transfer progress falls back to per-file --progress", found, progress2Version)
		return
	}
	report.add(SeverityInfo, "dependency", "rsync version %s supports --info=progress2", found)
}

func (c *Checker) resolveRsync(configured string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	for _, candidate := range rsyncCandidates {
		if info, err := c.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return "rsync"
}

func (c *Checker) checkAuth(report *Report, cfg config.Config) {
	dest := cfg.Target.Destination
	switch {
	case dest.Password != "":
		if _, err := c.LookPath("sshpass"); err != nil {
			report.add(SeverityWarn, "auth", "password auth is configured but sshpass is not installed; rsync will prompt or fail")
		} else {
			report.add(SeverityInfo, "auth", "password auth via sshpass")
		}
	case dest.KeyPath != "":
		keyPath, err := config.ExpandPath(dest.KeyPath)
		if err == nil {
			_, err = c.Stat(keyPath)
		}
		if err != nil {
			report.add(SeverityError, "auth", "private key %s is not readable: %v", dest.KeyPath, err)
		} else {
			report.add(SeverityInfo, "auth", "key auth with %s", dest.KeyPath)
		}
	case strings.TrimSpace(c.Getenv("SSH_AUTH_SOCK")) != "":
		report.add(SeverityInfo, "auth", "using ssh-agent at SSH_AUTH_SOCK")
	default:
		report.add(SeverityError, "auth", "no password, key_path or ssh-agent configured for %s", dest.Host)
	}
}

func (c *Checker) checkFilesystem(report *Report, cfg config.Config) {
	tempDir, err := config.ExpandPath(cfg.Install.TempDir)
	if err != nil || tempDir == "" {
		report.add(SeverityError, "filesystem", "install.temp_dir is invalid")
	} else if err := c.CheckWritable(tempDir); err != nil {
		report.add(SeverityError, "filesystem", "temp dir is not writable (%s): %v", tempDir, err)
	} else {
		report.add(SeverityInfo, "filesystem", "temp dir is writable: %s", tempDir)
	}

	if !cfg.Target.Local {
		return
	}
	libraryDir, err := config.ExpandPath(cfg.Target.LibraryDir)
	if err != nil || libraryDir == "" {
		report.add(SeverityError, "filesystem", "target.library_dir is invalid")
		return
	}
	if err := c.CheckWritable(libraryDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			report.add(SeverityWarn, "filesystem", "library dir does not exist yet and will be created: %s", libraryDir)
			return
		}
		report.add(SeverityError, "filesystem", "library dir is not writable (%s): %v", libraryDir, err)
		return
	}
	report.add(SeverityInfo, "filesystem", "library dir is writable: %s", libraryDir)
}

// probeLogin checks the port is open, then logs in and runs a trivial
// command with the configured credentials.
func probeLogin(ctx context.Context, d target.Destination) error {
	if err := target.Probe(ctx, d, target.DefaultProbeTimeout); err != nil {
		return err
	}
	remote, err := target.DialSSH(ctx, d, nil)
	if err != nil {
		return err
	}
	defer remote.Close()
	return remote.Ping(ctx)
}

func defaultReadVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

func checkDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	file, err := os.CreateTemp(path, ".deckload-write-check-*")
	if err != nil {
		return err
	}
	name := file.Name()
	_ = file.Close()
	_ = os.Remove(name)
	return nil
}
