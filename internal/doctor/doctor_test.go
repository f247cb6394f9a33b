package doctor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/jaa/deckload/internal/config"
	"github.com/jaa/deckload/internal/target"
)

func remoteConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Install.TempDir = "/var/tmp"
	cfg.Target.Local = false
	cfg.Target.Host = "192.168.1.50"
	cfg.Target.Password = "deck"
	cfg.Target.LibraryDir = "/home/deck/.local/share/Steam/steamapps/common"
	return cfg
}

func healthyChecker() *Checker {
	return &Checker{
		LookPath:      func(name string) (string, error) { return "/usr/bin/" + name, nil },
		ReadVersion:   func(ctx context.Context, binary string) (string, error) { return "rsync  version 3.2.7  protocol version 31", nil },
		Getenv:        func(key string) string { return "" },
		CheckWritable: func(path string) error { return nil },
		Stat:          func(path string) (fs.FileInfo, error) { return nil, fs.ErrNotExist },
		Probe:         func(ctx context.Context, d target.Destination) error { return nil },
	}
}

func findCheck(report Report, severity Severity, fragment string) bool {
	for _, check := range report.Checks {
		if check.Severity == severity && strings.Contains(check.Message, fragment) {
			return true
		}
	}
	return false
}

func TestDoctorHealthyRemote(t *testing.T) {
	report := healthyChecker().Check(context.Background(), remoteConfig())
	if report.HasErrors() {
		t.Fatalf("expected no errors, got %+v", report.Checks)
	}
	if !findCheck(report, SeverityInfo, "supports --info=progress2") {
		t.Fatalf("expected rsync version check, got %+v", report.Checks)
	}
	if !findCheck(report, SeverityInfo, "192.168.1.50:22 accepts SSH logins") {
		t.Fatalf("expected target probe check, got %+v", report.Checks)
	}
}

func TestDoctorMissingDownloader(t *testing.T) {
	checker := healthyChecker()
	checker.LookPath = func(name string) (string, error) {
		if name == "DepotDownloaderMod" {
			return "", fmt.Errorf("not found")
		}
		return "/usr/bin/" + name, nil
	}

	report := checker.Check(context.Background(), remoteConfig())
	if report.ErrorCount() != 1 || !findCheck(report, SeverityError, "DepotDownloaderMod not found") {
		t.Fatalf("expected one downloader error, got %+v", report.Checks)
	}
}

func TestDoctorOldRsyncWarns(t *testing.T) {
	checker := healthyChecker()
	checker.ReadVersion = func(ctx context.Context, binary string) (string, error) {
		return "rsync  version 2.6.9  protocol version 29", nil
	}

	report := checker.Check(context.Background(), remoteConfig())
	if report.HasErrors() {
		t.Fatalf("old rsync is a warning, got %+v", report.Checks)
	}
	if !findCheck(report, SeverityWarn, "rsync 2.6.9 is below 3.1.0") {
		t.Fatalf("expected rsync version warning, got %+v", report.Checks)
	}
}

func TestDoctorMissingSSHPassWarns(t *testing.T) {
	checker := healthyChecker()
	checker.LookPath = func(name string) (string, error) {
		if name == "sshpass" {
			return "", fmt.Errorf("not found")
		}
		return "/usr/bin/" + name, nil
	}

	report := checker.Check(context.Background(), remoteConfig())
	if !findCheck(report, SeverityWarn, "sshpass is not installed") {
		t.Fatalf("expected sshpass warning, got %+v", report.Checks)
	}
}

func TestDoctorUnreachableTarget(t *testing.T) {
	checker := healthyChecker()
	checker.Probe = func(ctx context.Context, d target.Destination) error {
		return fmt.Errorf("%s unreachable: connection refused", d.Address())
	}

	report := checker.Check(context.Background(), remoteConfig())
	if !findCheck(report, SeverityError, "unreachable") {
		t.Fatalf("expected probe error, got %+v", report.Checks)
	}
}

func TestDoctorRemoteWithoutCredentials(t *testing.T) {
	cfg := remoteConfig()
	cfg.Target.Password = ""

	report := healthyChecker().Check(context.Background(), cfg)
	if !findCheck(report, SeverityError, "no password, key_path or ssh-agent") {
		t.Fatalf("expected auth error, got %+v", report.Checks)
	}

	checker := healthyChecker()
	checker.Getenv = func(key string) string {
		if key == "SSH_AUTH_SOCK" {
			return "/run/user/1000/ssh-agent.sock"
		}
		return ""
	}
	report = checker.Check(context.Background(), cfg)
	if report.HasErrors() {
		t.Fatalf("ssh-agent should satisfy auth, got %+v", report.Checks)
	}
}

func TestDoctorLocalSkipsRemoteChecks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Install.TempDir = "/var/tmp"
	checker := healthyChecker()
	checker.Probe = func(ctx context.Context, d target.Destination) error {
		t.Fatalf("local installs must not probe the network")
		return nil
	}
	checker.CheckWritable = func(path string) error {
		if strings.Contains(path, "steamapps") {
			return fs.ErrNotExist
		}
		return nil
	}

	report := checker.Check(context.Background(), cfg)
	if report.HasErrors() {
		t.Fatalf("expected no errors, got %+v", report.Checks)
	}
	if !findCheck(report, SeverityWarn, "will be created") {
		t.Fatalf("expected missing library warning, got %+v", report.Checks)
	}
}

func TestCheckDirWritable(t *testing.T) {
	dir := t.TempDir()
	if err := checkDirWritable(dir); err != nil {
		t.Fatalf("expected writable dir, got %v", err)
	}
	file := dir + "/file"
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := checkDirWritable(file); err == nil {
		t.Fatalf("expected error for non-directory")
	}
}
