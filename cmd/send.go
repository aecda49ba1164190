package cmd

import (
	"strings"

	"github.com/PolarWolf314/cipherroom/internal/ui"
	"github.com/PolarWolf314/cipherroom/internal/utils"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <group> [message...]",
	Short: "Send an encrypted message to a group",
	Long: `Encrypts a message with the group key and sends it through the relay.

The message is read from standard input when it is omitted or given as "-".

Examples:
  cipherroom send design "standup moved to 10:30"
  git log -1 --format=%s | cipherroom send design -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting send command")

		text := strings.Join(args[1:], " ")
		if len(args) == 1 || text == "-" {
			Logger.Debugf("Reading message from stdin")
			data, err := utils.ReadStdin()
			if err != nil {
				return Logger.ErrorfAndReturn("failed to read message: %v", err)
			}
			text = strings.TrimRight(string(data), "\r\n")
		}

		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Sending...")
		defer cleanup()

		group, err := env.resolveGroup(cmd.Context(), args[0])
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		res, err := env.session.Send(cmd.Context(), group.ID, text)
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}
		Logger.Debugf("Message acknowledged as %s", res.Ack.ID)

		final := ui.Success.Sprint("✓") + " Sent to " + ui.Highlight.Sprint(group.Name) + " " + ui.Muted.Sprint(res.Ack.ID)
		if !res.Published {
			final += "\n" + ui.Warning.Sprint("Warning:") + " members watching live will see it on their next history load"
		}
		s.FinalMSG = final
		return nil
	},
}
