// Package target reaches the machine a game is installed onto: the local
// host or a remote Steam Deck over SSH.
package target

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort         = 22
	DefaultProbeTimeout = 3 * time.Second
)

// Destination describes where a game is installed. Password, KeyPath and a
// running ssh-agent are tried in that order for remote destinations.
type Destination struct {
	Local    bool   `json:"is_local" mapstructure:"local"`
	Host     string `json:"ip" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"username" mapstructure:"user"`
	Password string `json:"password,omitempty" mapstructure:"password"`
	KeyPath  string `json:"private_key_path,omitempty" mapstructure:"key_path"`
}

// SSHPort returns Port or DefaultPort when unset.
func (d Destination) SSHPort() int {
	if d.Port <= 0 {
		return DefaultPort
	}
	return d.Port
}

func (d Destination) Address() string {
	return net.JoinHostPort(strings.TrimSpace(d.Host), strconv.Itoa(d.SSHPort()))
}

// Label is a short human name used in status messages.
func (d Destination) Label() string {
	if d.Local {
		return "local library"
	}
	return strings.TrimSpace(d.Host)
}

// Problems lists what is missing for the destination to be usable.
func (d Destination) Problems() []string {
	if d.Local {
		return nil
	}
	problems := []string{}
	if strings.TrimSpace(d.Host) == "" {
		problems = append(problems, "remote destination requires a host")
	}
	if strings.TrimSpace(d.User) == "" {
		problems = append(problems, "remote destination requires a user")
	}
	if d.Port < 0 || d.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", d.Port))
	}
	return problems
}

// Probe reports whether the destination accepts TCP connections on its SSH
// port. Local destinations are always reachable.
func Probe(ctx context.Context, d Destination, timeout time.Duration) error {
	if d.Local {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address())
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", d.Address(), err)
	}
	return conn.Close()
}
