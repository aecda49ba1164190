package main

import (
	"fmt"
	"os"

	"github.com/PolarWolf314/cipherroom/cmd"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cipherroom",
	Short: "cipherroom - End-to-end encrypted group messaging and file sharing.",
	Long: `cipherroom is a command-line client for encrypted group rooms. Messages and
files are encrypted with a key derived from the group's invite code before they
leave your machine; the relay only ever stores ciphertext.

Usage:
  cipherroom <command> [flags]

Available Commands:
  init       Create your identity
  groups     Create, join and list groups
  send       Send a message
  history    Show and search a group's conversation
  watch      Follow a group live
  files      Share encrypted files
  key        Inspect group keys

Run 'cipherroom help <command>' for more details on a specific command.
`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to cipherroom! Run 'cipherroom --help' to see available commands.")
	},
}

func init() {
	cmd.Register(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
