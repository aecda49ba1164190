package cmd

import (
	"fmt"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/transcript"
	"github.com/PolarWolf314/cipherroom/internal/ui"

	"github.com/spf13/cobra"
)

var (
	historySearch string
	historyLimit  int
	historyFiles  bool
)

func init() {
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "only show records containing this text (case-insensitive)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show at most the last n records")
	historyCmd.Flags().BoolVar(&historyFiles, "files", true, "include shared files in the transcript")
}

func resetHistoryCommandState() {
	historySearch = ""
	historyLimit = 0
	historyFiles = true
}

var historyCmd = &cobra.Command{
	Use:   "history <group>",
	Short: "Show a group's decrypted conversation",
	Long: `Fetches a group's history from the relay, decrypts it and prints it in
order. Records that cannot be decrypted are skipped; run with --verbose to
see how many.

Examples:
  cipherroom history design
  cipherroom history design --search lunch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting history command")

		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Loading history...")
		defer cleanup()

		group, err := env.resolveGroup(cmd.Context(), args[0])
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		load, err := env.session.LoadHistory(cmd.Context(), group.ID)
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}
		Logger.Infof("Fetched %d records: %d new, %d duplicate, %d dropped",
			load.Fetched, load.Merge.Inserted, load.Merge.Duplicates, load.Merge.Dropped)

		if historyFiles {
			if _, err := env.session.ListFiles(cmd.Context(), group.ID); err != nil {
				Logger.Warnf("Could not list files: %v", err)
			}
		}
		cleanup()

		var records []transcript.Record
		if historySearch != "" {
			for _, res := range env.session.Search(group.ID, historySearch) {
				records = append(records, res.Record)
			}
		} else {
			records = env.session.Transcript(group.ID)
		}
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[len(records)-historyLimit:]
		}

		if len(records) == 0 {
			if historySearch != "" {
				fmt.Println(ui.Muted.Sprint("No records match " + historySearch))
			} else {
				fmt.Println(ui.Muted.Sprint("No messages in " + group.Name + " yet"))
			}
			return nil
		}

		now := time.Now()
		for _, r := range records {
			fmt.Println(formatRecord(r, historySearch, now))
		}
		if load.Merge.Dropped > 0 {
			fmt.Println(ui.Warning.Sprint("Warning:") + fmt.Sprintf(" %d records could not be decrypted and were skipped", load.Merge.Dropped))
		}
		return nil
	},
}
