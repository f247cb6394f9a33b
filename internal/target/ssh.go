package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	dialTimeout    = 10 * time.Second
	missingFileRC  = 3
	sshPingCommand = "echo 'SSH OK'"
)

// SSH runs file operations on a remote host through shell commands over a
// single SSH connection.
type SSH struct {
	client *ssh.Client
	logger *zap.Logger
	closer io.Closer
}

func DialSSH(ctx context.Context, d Destination, logger *zap.Logger) (*SSH, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if problems := d.Problems(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid destination: %s", strings.Join(problems, "; "))
	}

	auth, agentConn, err := authMethods(d)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User: d.User,
		Auth: auth,
		// Steam Deck host keys change on every reimage and the Deck is
		// addressed by LAN IP; the transfer shell skips checking as well.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address())
	if err != nil {
		closeQuietly(agentConn)
		return nil, fmt.Errorf("connect %s: %w", d.Address(), err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, d.Address(), config)
	if err != nil {
		_ = conn.Close()
		closeQuietly(agentConn)
		return nil, fmt.Errorf("ssh handshake with %s: %w", d.Address(), err)
	}
	logger.Debug("ssh connected", zap.String("addr", d.Address()), zap.String("user", d.User))
	return &SSH{
		client: ssh.NewClient(clientConn, chans, reqs),
		logger: logger,
		closer: agentConn,
	}, nil
}

func authMethods(d Destination) ([]ssh.AuthMethod, io.Closer, error) {
	methods := []ssh.AuthMethod{}
	if d.Password != "" {
		password := d.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_ string, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if keyPath := strings.TrimSpace(d.KeyPath); keyPath != "" {
		local := NewLocal()
		resolved, err := local.Resolve(keyPath)
		if err != nil {
			return nil, nil, err
		}
		pem, err := os.ReadFile(resolved)
		if err != nil {
			return nil, nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && d.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(d.Password))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse private key %s: %w", resolved, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	var agentConn io.Closer
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("no ssh credentials: set a password, a key file, or run ssh-agent")
	}
	return methods, agentConn, nil
}

// Run executes command on the remote host, feeding stdin when non-nil, and
// returns its stdout.
func (s *SSH) Run(ctx context.Context, command string, stdin io.Reader) ([]byte, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	if err := session.Run(command); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &RemoteError{Command: command, Status: exitErr.ExitStatus(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return nil, fmt.Errorf("run %q: %w", command, err)
	}
	return stdout.Bytes(), nil
}

func (s *SSH) ReadFile(ctx context.Context, p string) ([]byte, error) {
	quoted := quoteRemotePath(p)
	out, err := s.Run(ctx, fmt.Sprintf("test -f %s || exit %d; cat %s", quoted, missingFileRC, quoted), nil)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.Status == missingFileRC {
			return nil, fmt.Errorf("%s: %w", p, fs.ErrNotExist)
		}
		return nil, err
	}
	return out, nil
}

func (s *SSH) WriteFile(ctx context.Context, p string, data []byte) error {
	command := fmt.Sprintf("mkdir -p %s && cat > %s", quoteRemotePath(path.Dir(p)), quoteRemotePath(p))
	if _, err := s.Run(ctx, command, bytes.NewReader(data)); err != nil {
		return err
	}
	s.logger.Debug("remote file written", zap.String("path", p), zap.Int("bytes", len(data)))
	return nil
}

// Ping runs a trivial command to prove the credentials work.
func (s *SSH) Ping(ctx context.Context) error {
	out, err := s.Run(ctx, sshPingCommand, nil)
	if err != nil {
		return err
	}
	if !strings.Contains(string(out), "SSH OK") {
		return fmt.Errorf("unexpected ping response %q", strings.TrimSpace(string(out)))
	}
	return nil
}

func (s *SSH) Close() error {
	err := s.client.Close()
	closeQuietly(s.closer)
	return err
}

type RemoteError struct {
	Command string
	Status  int
	Stderr  string
}

func (e *RemoteError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("remote command %q exited with status %d", e.Command, e.Status)
	}
	return fmt.Sprintf("remote command %q exited with status %d: %s", e.Command, e.Status, e.Stderr)
}

// quoteRemotePath double-quotes p for a POSIX shell, turning a leading "~/"
// into "$HOME/" so home-relative paths still expand.
func quoteRemotePath(p string) string {
	if p == "~" {
		return `"$HOME"`
	}
	if strings.HasPrefix(p, "~/") {
		return `"$HOME/` + escapeDoubleQuoted(strings.TrimPrefix(p, "~/")) + `"`
	}
	return `"` + escapeDoubleQuoted(p) + `"`
}

func escapeDoubleQuoted(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return replacer.Replace(value)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
