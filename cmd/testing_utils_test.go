// Testing utilities shared between command tests: isolated configuration,
// an in-memory relay and output capture.

package cmd

import (
	"bytes"
	"io"
	"log"
	"os"
	"testing"

	"github.com/PolarWolf314/cipherroom/internal/configs"
	logger "github.com/PolarWolf314/cipherroom/internal/logging"
	"github.com/PolarWolf314/cipherroom/internal/relay"
	"github.com/PolarWolf314/cipherroom/internal/relay/memory"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// setupTestEnvironment replaces the relay with an in-memory hub and disables
// color so output can be matched as plain text.
func setupTestEnvironment(t *testing.T) *memory.Hub {
	t.Helper()
	hub := memory.NewHub()

	originalRelay := newRelay
	originalNoColor := color.NoColor
	newRelay = func(_, memberRef string) (relay.Relay, error) {
		return hub.Client(memberRef), nil
	}
	color.NoColor = true

	t.Cleanup(func() {
		newRelay = originalRelay
		color.NoColor = originalNoColor
		ResetGlobalState()
	})
	return hub
}

// useIdentity points the CLI at a per-user config directory.
func useIdentity(t *testing.T, dir string) {
	t.Helper()
	t.Setenv(configs.EnvConfigDir, dir)
	t.Setenv(configs.EnvRedisURL, "")
}

// loadConfig reads the config written under dir.
func loadConfig(t *testing.T, dir string) *configs.ClientConfig {
	t.Helper()
	config, err := configs.LoadClientConfig(configs.SettingsFor(dir).ConfigPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return config
}

// runCLI executes a fresh command tree with args and returns everything it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ResetGlobalState()
	Logger = logger.Logger{}

	root := &cobra.Command{
		Use:           "cipherroom",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	Register(root)
	root.SetArgs(args)

	return captureOutput(root.Execute)
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	stdoutChan := make(chan string, 1)
	stderrChan := make(chan string, 1)
	drain := func(r io.Reader, out chan<- string) {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		out <- buf.String()
	}
	go drain(stdoutReader, stdoutChan)
	go drain(stderrReader, stderrChan)

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-stdoutChan + <-stderrChan, err
}
