package cmd

import (
	"fmt"

	"github.com/PolarWolf314/cipherroom/internal/ui"

	"github.com/spf13/cobra"
)

// KeyCmd inspects group keys.
var KeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Inspect group keys",
}

func init() {
	KeyCmd.AddCommand(keyFingerprintCmd)
}

var keyFingerprintCmd = &cobra.Command{
	Use:   "fingerprint <group>",
	Short: "Print the fingerprint of a group's key",
	Long: `Prints a short fingerprint of the key derived from the group's invite code.
Members holding the same code see the same fingerprint; compare it out of band
to be sure nobody joined with a mistyped or substituted code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		group, err := env.resolveGroup(cmd.Context(), args[0])
		if err != nil {
			return report(err)
		}
		fp, err := env.session.Fingerprint(cmd.Context(), group.ID)
		if err != nil {
			return report(err)
		}

		fmt.Println(ui.Highlight.Sprint(group.Name) + "  " + fp)
		return nil
	},
}
