package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jaa/deckload/internal/exitcode"
	"github.com/jaa/deckload/internal/install"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &AppContext{IO: IOStreams{In: strings.NewReader(""), Out: &out, ErrOut: &errOut}}
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeTestConfig(t *testing.T, root string, extra string) string {
	t.Helper()
	payload := fmt.Sprintf(`version: 1
tools:
  downloader: "/opt/ddm/DepotDownloaderMod"
install:
  temp_dir: %q
target:
  local: true
  library_dir: %q
steam:
  allowlist: %q
  config_vdf:
    - %q
%s`,
		filepath.Join(root, "tmp"),
		filepath.Join(root, "steamapps", "common"),
		filepath.Join(root, "SLSsteam", "config.yaml"),
		filepath.Join(root, "Steam", "config", "config.vdf"),
		extra,
	)
	path := filepath.Join(root, "deckload.yaml")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestInstallDryRunPrintsPlan(t *testing.T) {
	root := t.TempDir()
	configPath := writeTestConfig(t, root, "")

	out, _, err := runCLI(t, "--config", configPath, "--dry-run", "install",
		"--app", "620", "--name", "Portal 2",
		"--depot", "621", "--manifest", "111", "--manifest-file", "/m/621_111.manifest",
		"--depot", "622", "--manifest", "222", "--manifest-file", "/m/622_222.manifest",
		"--key", "621:deadbeef",
	)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	wantPath := filepath.ToSlash(filepath.Join(root, "steamapps", "common")) + "/Portal 2"
	if !strings.Contains(out, "Plan: install Portal 2 (620) to local library:"+wantPath) {
		t.Fatalf("unexpected plan header:\n%s", out)
	}
	if !strings.Contains(out, "depot 2/2: 622 manifest 222") {
		t.Fatalf("expected second depot in plan:\n%s", out)
	}
	if !strings.Contains(out, "decryption keys: 1") {
		t.Fatalf("expected key count in plan:\n%s", out)
	}
}

func TestInstallDryRunJSON(t *testing.T) {
	root := t.TempDir()
	configPath := writeTestConfig(t, root, "")

	out, _, err := runCLI(t, "--config", configPath, "--dry-run", "--json", "install",
		"--app", "620", "--depot", "621", "--manifest", "111", "--manifest-file", "/m/621_111.manifest",
	)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	var plan installPlan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if !plan.DryRun || plan.AppID != "620" || len(plan.Depots) != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if !strings.HasSuffix(plan.InstallPath, "/620") {
		t.Fatalf("expected folder to fall back to app id, got %q", plan.InstallPath)
	}
}

func TestInstallRejectsMismatchedDepotFlags(t *testing.T) {
	root := t.TempDir()
	configPath := writeTestConfig(t, root, "")

	_, _, err := runCLI(t, "--config", configPath, "--dry-run", "install",
		"--app", "620", "--depot", "621", "--depot", "622", "--manifest", "111", "--manifest-file", "/m/a",
	)
	if got := mapExitCode(err); got != exitcode.InvalidUsage {
		t.Fatalf("exit code = %d, want %d (err=%v)", got, exitcode.InvalidUsage, err)
	}
	if !strings.Contains(err.Error(), "lengths mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInstallRejectsInvalidRequest(t *testing.T) {
	root := t.TempDir()
	configPath := writeTestConfig(t, root, "")

	_, _, err := runCLI(t, "--config", configPath, "install", "--app", "portal")
	if got := mapExitCode(err); got != exitcode.InvalidUsage {
		t.Fatalf("exit code = %d, want %d (err=%v)", got, exitcode.InvalidUsage, err)
	}
	var validation *install.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %T", err)
	}
}

func TestInstallRemoteFlagsRequireHost(t *testing.T) {
	root := t.TempDir()
	configPath := writeTestConfig(t, root, "")

	_, _, err := runCLI(t, "--config", configPath, "--dry-run", "install", "--remote",
		"--app", "620", "--depot", "621", "--manifest", "111", "--manifest-file", "/m/a",
	)
	if err == nil || !strings.Contains(err.Error(), "requires a host") {
		t.Fatalf("expected missing host error, got %v", err)
	}
}

func TestParseDepotKeys(t *testing.T) {
	keys, err := parseDepotKeys([]string{"621:abc", " 622 : def "})
	if err != nil {
		t.Fatalf("parse keys: %v", err)
	}
	if len(keys) != 2 || keys[1].DepotID != "622" || keys[1].Key != "def" {
		t.Fatalf("unexpected keys: %+v", keys)
	}
	if _, err := parseDepotKeys([]string{"621"}); err == nil {
		t.Fatalf("expected missing separator to fail")
	}
}

func TestInstallResultExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		snapshot install.Snapshot
		want     int
	}{
		{name: "finished", snapshot: install.Snapshot{State: install.StateFinished}, want: exitcode.Success},
		{name: "partial", snapshot: install.Snapshot{State: install.StateFinished, FailedDepots: 1}, want: exitcode.PartialSuccess},
		{name: "error", snapshot: install.Snapshot{State: install.StateError, Message: "Transfer failed"}, want: exitcode.InstallFailed},
		{name: "cancelled", snapshot: install.Snapshot{State: install.StateCancelled}, want: exitcode.Interrupted},
		{name: "unexpected", snapshot: install.Snapshot{State: install.StateDownloading}, want: exitcode.RuntimeFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapExitCode(installResult(tc.snapshot)); got != tc.want {
				t.Fatalf("exit code = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestControlCommandsPostToServer(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		if r.URL.Path == "/api/install" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(install.Snapshot{State: install.StatePaused, Message: "Paused"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	for _, action := range []string{"pause", "resume", "cancel"} {
		out, _, err := runCLI(t, action, "--addr", addr)
		if err != nil {
			t.Fatalf("%s failed: %v", action, err)
		}
		if !strings.Contains(out, "Sent "+action) {
			t.Fatalf("unexpected %s output %q", action, out)
		}
	}

	out, _, err := runCLI(t, "status", "--addr", addr)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "[paused] Paused") {
		t.Fatalf("unexpected status output %q", out)
	}

	want := []string{
		"POST /api/install/pause",
		"POST /api/install/resume",
		"POST /api/install/cancel",
		"GET /api/install",
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestControlCommandReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, _, err := runCLI(t, "cancel", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "deckload version dev\n") {
		t.Fatalf("unexpected version output %q", out)
	}
}
