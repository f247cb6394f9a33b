package target

import (
	"context"

	"go.uber.org/zap"
)

// FS is the narrow file API the install finalizer needs on a destination.
// ReadFile reports missing files with an error wrapping fs.ErrNotExist.
// Paths may start with "~/" for the destination user's home directory.
type FS interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Close() error
}

// Opener opens the filesystem of a destination.
type Opener func(ctx context.Context, d Destination) (FS, error)

// NewOpener returns the default Opener: a Local filesystem for local
// destinations and an SSH session otherwise.
func NewOpener(logger *zap.Logger) Opener {
	return func(ctx context.Context, d Destination) (FS, error) {
		if d.Local {
			return NewLocal(), nil
		}
		return DialSSH(ctx, d, logger)
	}
}
