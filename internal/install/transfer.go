package install

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jaa/deckload/internal/engine"
	"github.com/jaa/deckload/internal/version"
)

// rsyncCandidates lists rsync builds newer than the one macOS ships, tried
// before falling back to PATH.
var rsyncCandidates = []string{"/opt/homebrew/bin/rsync", "/usr/local/bin/rsync"}

const progress2MinVersion = "3.1.0"

type transferPlan struct {
	spec           engine.ExecSpec
	missingSSHPass bool
}

// transfer moves the staged files to the destination. Local installs were
// downloaded in place and only report completion.
func (m *Manager) transfer(ctx context.Context, r *run) bool {
	if !r.remote {
		m.setStatus(StateTransferring, fmt.Sprintf("Installed %d files directly", r.fileCount))
		m.completeTransfer(r.fileCount, r.byteCount, "direct")
		return !m.cancelled.Load()
	}
	if m.cancelled.Load() {
		return false
	}

	dest := r.req.Destination
	m.setStatus(StateTransferring, fmt.Sprintf("Transferring %d files to %s...", r.fileCount, dest.Host))

	plan := m.planTransfer(ctx, r)
	r.log.Info("transfer started", zap.String("command", plan.spec.DisplayCommand))
	result := m.runner.Run(ctx, plan.spec, engine.Hooks{
		Started: m.trackProcess,
		Exited:  m.procs.clear,
		Line: func(line string) bool {
			if m.cancelled.Load() {
				return false
			}
			if progress, ok := ParseTransferLine(line); ok {
				m.updateTransfer(progress, true)
			}
			return true
		},
	})
	if m.cancelled.Load() {
		return false
	}
	if result.ExitCode != 0 {
		message := DescribeTransferExit(result.ExitCode, dest.Host, plan.missingSSHPass)
		if result.ExitCode == 127 && result.Err != nil {
			message = fmt.Sprintf("rsync could not be started: %v", result.Err)
		}
		r.log.Error("transfer failed",
			zap.Int("exit_code", result.ExitCode),
			zap.Error(result.Err),
			zap.String("stderr", result.StderrTail),
		)
		m.setStatus(StateError, message)
		return false
	}

	r.log.Info("transfer finished", zap.Duration("duration", result.Duration))
	m.completeTransfer(r.fileCount, r.byteCount, "done")
	return true
}

func (m *Manager) planTransfer(ctx context.Context, r *run) transferPlan {
	rsync := r.req.RsyncPath
	if rsync == "" {
		rsync = resolveRsync()
	}

	args := []string{"-avzs"}
	raw, err := m.readVersion(ctx, rsync)
	if err != nil {
		r.log.Debug("rsync version probe failed", zap.String("rsync", rsync), zap.Error(err))
	}
	if version.AtLeast(raw, progress2MinVersion) {
		args = append(args, "--info=progress2", "--no-inc-recursive")
	} else {
		args = append(args, "--progress")
	}

	dest := r.req.Destination
	port := dest.SSHPort()
	sshOptions := "-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o ServerAliveInterval=30 -o ServerAliveCountMax=10"

	var plan transferPlan
	var shell string
	var env []string
	switch {
	case dest.Password != "" && m.hasSSHPass():
		shell = fmt.Sprintf("sshpass -e ssh -p %d %s", port, sshOptions)
		env = []string{"SSHPASS=" + dest.Password}
	case dest.KeyPath != "":
		shell = fmt.Sprintf("ssh -p %d -i %s %s", port, shellQuote(dest.KeyPath), sshOptions)
	default:
		plan.missingSSHPass = dest.Password != ""
		shell = fmt.Sprintf("ssh -p %d %s", port, sshOptions)
	}
	if plan.missingSSHPass {
		r.log.Warn("sshpass not found; rsync falls back to interactive ssh auth")
	}

	source := strings.TrimRight(r.downloadDir, string(os.PathSeparator)) + "/"
	destination := fmt.Sprintf("%s@%s:%s/%s", dest.User, rsyncHost(dest.Host), strings.TrimRight(r.targetDir, "/"), r.folder)
	args = append(args, "-e", shell, source, destination)

	plan.spec = engine.ExecSpec{
		Bin:            rsync,
		Args:           args,
		Env:            env,
		DisplayCommand: fmt.Sprintf("rsync %s -> %s", source, destination),
	}
	return plan
}

func (m *Manager) hasSSHPass() bool {
	_, err := m.lookPath("sshpass")
	return err == nil
}

func resolveRsync() string {
	for _, candidate := range rsyncCandidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return "rsync"
}

func rsyncHost(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}

func shellQuote(value string) string {
	if value != "" && strings.IndexFunc(value, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '_' || r == '-' || r == '~' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
