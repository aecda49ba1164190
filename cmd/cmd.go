package cmd

import (
	logger "github.com/PolarWolf314/cipherroom/internal/logging"
	"github.com/PolarWolf314/cipherroom/internal/relay"
	"github.com/PolarWolf314/cipherroom/internal/relay/redisrelay"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose bool
	debug   bool
	Logger  logger.Logger

	// newRelay connects to the relay. Tests replace it with an in-memory hub.
	newRelay = func(redisURL, memberRef string) (relay.Relay, error) {
		return redisrelay.New(redisURL, memberRef)
	}
)

// Register attaches the global flags and every cipherroom command to root.
func Register(root *cobra.Command) {
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		Logger = logger.Logger{
			Verbose: verbose,
			Debug:   debug,
		}
		Logger.Debugf("Running %s with verbose=%t, debug=%t", cmd.CommandPath(), verbose, debug)
	}

	root.AddCommand(initCmd)
	root.AddCommand(GroupsCmd)
	root.AddCommand(sendCmd)
	root.AddCommand(historyCmd)
	root.AddCommand(watchCmd)
	root.AddCommand(FilesCmd)
	root.AddCommand(KeyCmd)
}

// Helper functions for testing

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	resetInitCommandState()
	resetGroupsCommandState()
	resetHistoryCommandState()
	resetWatchCommandState()
	resetFilesCommandState()

	for _, c := range []*cobra.Command{initCmd, GroupsCmd, sendCmd, historyCmd, watchCmd, FilesCmd, KeyCmd} {
		resetFlags(c)
	}
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
