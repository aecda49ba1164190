package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
	"github.com/PolarWolf314/cipherroom/internal/transcript"
	"github.com/PolarWolf314/cipherroom/internal/ui"
	"github.com/PolarWolf314/cipherroom/internal/utils"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	watchMetricsAddr string
	watchFor         time.Duration
)

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	watchCmd.Flags().DurationVar(&watchFor, "for", 0, "stop after this long (0 watches until interrupted)")
}

func resetWatchCommandState() {
	watchMetricsAddr = ""
	watchFor = 0
}

var watchCmd = &cobra.Command{
	Use:   "watch <group>",
	Short: "Follow a group's conversation live",
	Long: `Prints a group's history, then prints new messages as they are pushed by
the relay. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting watch command")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if watchFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchFor)
			defer cancel()
		}

		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		group, err := env.resolveGroup(ctx, args[0])
		if err != nil {
			return report(err)
		}

		if watchMetricsAddr != "" {
			srv := &http.Server{
				Addr:              watchMetricsAddr,
				Handler:           promhttp.HandlerFor(env.registry, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					Logger.WarnfAlways("Metrics server stopped: %v", err)
				}
			}()
			defer srv.Close()
			Logger.Infof("Serving metrics on %s", watchMetricsAddr)
		}

		var mu sync.Mutex
		now := time.Now()
		printed := make(map[string]bool)
		show := func(r transcript.Record) {
			if r.IDKind == envelope.Durable {
				if printed[r.ID] {
					return
				}
				printed[r.ID] = true
			}
			fmt.Println(formatRecord(r, "", now))
		}

		// Subscribe before loading so nothing sent in between is missed; the
		// transcript deduplicates anything seen twice.
		err = env.session.Watch(ctx, group.ID, func(res transcript.Result, id string) {
			if res.Inserted == 0 {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range env.session.Transcript(group.ID) {
				if r.ID == id {
					show(r)
				}
			}
		})
		if err != nil {
			return report(err)
		}

		load, err := env.session.LoadHistory(ctx, group.ID)
		if err != nil {
			return report(err)
		}

		mu.Lock()
		for _, r := range load.Records {
			show(r)
		}
		mu.Unlock()

		if utils.IsStdoutTerminal() {
			fmt.Println()
			figure.NewColorFigure("cipherroom", "standard", "green", true).Print()
			fmt.Println()
		}
		fmt.Println(ui.Muted.Sprint("Watching " + group.Name + ", Ctrl-C to stop"))
		<-ctx.Done()
		return nil
	},
}
