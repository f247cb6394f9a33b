package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaa/deckload/internal/fileops"
)

type Local struct {
	HomeDir func() (string, error)
}

func NewLocal() *Local {
	return &Local{HomeDir: os.UserHomeDir}
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// WriteFile writes through a sibling temp file so a crash never leaves a
// half-written Steam config behind.
func (l *Local) WriteFile(_ context.Context, path string, data []byte) error {
	resolved, err := l.Resolve(path)
	if err != nil {
		return err
	}
	return fileops.WriteFileAtomic(resolved, data, 0o644)
}

func (l *Local) Close() error { return nil }

// Resolve expands a leading "~" and cleans path.
func (l *Local) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	homeDir := l.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
}
