package engine

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// SplitLines reads r one byte at a time and calls fn for every line
// terminated by '\r' or '\n'. Tools that redraw progress in place only ever
// emit '\r', so a newline-only scanner would see nothing until exit.
// Blank lines are skipped. fn returning false stops the scan.
func SplitLines(r io.Reader, fn func(line string) bool) error {
	reader := bufio.NewReader(r)
	var current strings.Builder
	flush := func() bool {
		line := strings.TrimSpace(current.String())
		current.Reset()
		if line == "" {
			return true
		}
		return fn(line)
	}

	for {
		b, err := reader.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				return nil
			}
			return err
		}
		if b == '\r' || b == '\n' {
			if !flush() {
				return nil
			}
			continue
		}
		current.WriteByte(b)
	}
}
