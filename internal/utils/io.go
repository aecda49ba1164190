package utils

import (
	"fmt"
	"io"
	"os"
)

// ReadStdin reads all content from stdin.
// Returns an error if stdin is empty, is a terminal (no piped data), or cannot be read.
func ReadStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}

	// If ModeCharDevice is set, stdin is connected to a terminal.
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no data provided on stdin (hint: pipe the message or file into this command)")
	}

	return ReadAllLimited(os.Stdin, MaxStdinBytes)
}

// MaxStdinBytes caps what ReadStdin will accept.
const MaxStdinBytes = 64 << 20

// ReadAllLimited reads r to the end, failing if it is empty or exceeds limit bytes.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input is empty")
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input is larger than %s", FormatBytes(limit))
	}
	return data, nil
}
