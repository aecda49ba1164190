package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/audit"
	"github.com/PolarWolf314/cipherroom/internal/configs"
	"github.com/PolarWolf314/cipherroom/internal/envelope"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/metrics"
	"github.com/PolarWolf314/cipherroom/internal/search"
	"github.com/PolarWolf314/cipherroom/internal/transcript"
	"github.com/PolarWolf314/cipherroom/internal/ui"
	"github.com/PolarWolf314/cipherroom/internal/utils"
	"github.com/PolarWolf314/cipherroom/internal/workflows"

	"github.com/briandowns/spinner"
	"github.com/prometheus/client_golang/prometheus"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a cleanup function that is safe to call more than once.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		// Ensure log output is discarded unless in verbose mode.
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			if quiet {
				log.SetOutput(os.Stdout)
			}

			finalMsg := ""
			if s.FinalMSG != "" {
				finalMsg = ui.EnsureNewline(s.FinalMSG)
				// Clear FinalMSG so s.Stop() doesn't print it.
				s.FinalMSG = ""
			}

			if quiet {
				s.Stop()
			}

			if finalMsg != "" {
				fmt.Print(finalMsg)
			}
		})
	}

	return s, cleanup
}

// clientEnv is everything a command needs to talk to its groups.
type clientEnv struct {
	settings *configs.Settings
	config   *configs.ClientConfig
	session  *workflows.Session
	registry *prometheus.Registry
}

// openSession loads the client config and connects to the relay.
func openSession() (*clientEnv, error) {
	settings, err := configs.ResolveSettings()
	if err != nil {
		return nil, err
	}
	Logger.Debugf("Config path: %s", settings.ConfigPath)

	config, err := configs.LoadClientConfig(settings.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := config.RequireIdentity(); err != nil {
		return nil, err
	}
	suite, err := config.Suite()
	if err != nil {
		return nil, err
	}

	ref := config.Identity.SenderRef
	Logger.Debugf("Connecting to relay at %s as %s", config.RedisURL(), ref)
	r, err := newRelay(config.RedisURL(), ref)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	session, err := workflows.NewSession(workflows.SessionOptions{
		Relay:     r,
		Cache:     configs.NewGroupCache(settings.ConfigPath, config, r).WithLogger(Logger),
		SenderRef: ref,
		Suite:     suite,
		Audit:     audit.New(settings.AuditPath, ref),
		Logger:    Logger,
		Metrics:   metrics.NewReconcile(registry),
	})
	if err != nil {
		r.Close()
		return nil, err
	}

	return &clientEnv{
		settings: settings,
		config:   config,
		session:  session,
		registry: registry,
	}, nil
}

func (e *clientEnv) Close() {
	if err := e.session.Close(); err != nil {
		Logger.Warnf("Closing relay connection: %v", err)
	}
}

// resolveGroup finds a group by id or name, refreshing the local cache from
// the relay once if it is not known locally.
func (e *clientEnv) resolveGroup(ctx context.Context, ref string) (configs.NamedGroup, error) {
	g, err := e.session.ResolveGroup(ref)
	if err == nil || !errors.Is(err, kerrors.ErrGroupNotFound) {
		return g, err
	}
	Logger.Debugf("Group %q not cached, refreshing", ref)
	e.session.ListGroups(ctx, true)
	return e.session.ResolveGroup(ref)
}

// explain turns a known error into a user-facing message. Unknown errors are
// returned for cobra to report.
func explain(err error) (string, error) {
	var msg, hint string
	switch {
	case errors.Is(err, kerrors.ErrNotConfigured):
		msg = "cipherroom has not been initialized"
		hint = "Run " + ui.Code.Sprint("cipherroom init") + " first"
	case errors.Is(err, kerrors.ErrGroupNotFound):
		msg = "Group not found: " + err.Error()
		hint = "Run " + ui.Code.Sprint("cipherroom groups list --refresh") + " to see your groups"
	// Checked before ErrMissingSecret, which a failed metadata refresh also carries.
	case errors.Is(err, kerrors.ErrTransport):
		msg = "Could not reach the relay: " + err.Error()
		hint = "Check the relay address or set " + ui.Flag.Sprint(configs.EnvRedisURL)
	case errors.Is(err, kerrors.ErrMissingSecret):
		msg = "No invite code is known for this group"
		hint = "Run " + ui.Code.Sprint("cipherroom groups join") + " with the group's invite code"
	case errors.Is(err, kerrors.ErrEmptyMessage):
		msg = "Message is empty"
	case errors.Is(err, kerrors.ErrLoadInFlight):
		msg = "History is already loading for this group"
	case errors.Is(err, kerrors.ErrFileNotFound):
		msg = "File not found: " + err.Error()
	case errors.Is(err, kerrors.ErrAuthentication), errors.Is(err, kerrors.ErrDigestMismatch):
		msg = "Content failed its integrity check and was discarded"
	default:
		return "", Logger.ErrorfAndReturn("%v", err)
	}

	Logger.Debugf("Explained error: %v", err)
	out := ui.Error.Sprint("✗") + " " + msg
	if hint != "" {
		out += "\n" + ui.Info.Sprint("→") + " " + hint
	}
	return out, nil
}

// report prints the explanation of err, if it has one.
func report(err error) error {
	msg, err := explain(err)
	if msg != "" {
		fmt.Println(msg)
	}
	return err
}

// formatRecord renders one transcript line. query, when set, is highlighted.
func formatRecord(r transcript.Record, query string, now time.Time) string {
	var b strings.Builder
	b.WriteString(ui.Muted.Sprint(utils.FormatTimestamp(r.OccurredAt, now)))
	b.WriteString(" ")

	if r.Author == transcript.Self {
		b.WriteString(ui.Self.Sprint("you"))
	} else {
		b.WriteString(ui.Highlight.Sprint(shortRef(r.SenderRef)))
	}
	b.WriteString(": ")

	body := search.Highlight(r.Label(), query, search.TerminalMarker)
	if r.Kind == transcript.KindFile {
		b.WriteString("file " + body + " " + ui.Muted.Sprint(utils.FormatBytes(r.File.SizeBytes)+", id "+r.ID))
	} else {
		b.WriteString(body)
	}

	if r.IDKind == envelope.Ephemeral {
		b.WriteString(" " + ui.Pending.Sprint("sending"))
	}
	return b.String()
}

func shortRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
