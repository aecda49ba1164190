package cmd

import (
	"fmt"

	"github.com/PolarWolf314/cipherroom/internal/ui"
	"github.com/PolarWolf314/cipherroom/internal/utils"

	"github.com/spf13/cobra"
)

var (
	joinInvite    string
	groupsRefresh bool

	// GroupsCmd manages group membership.
	GroupsCmd = &cobra.Command{
		Use:   "groups",
		Short: "Create, join and list groups",
		Long: `Groups are the unit of sharing. Every member of a group derives the same
key from the group's invite code, so the relay never sees plaintext.

Examples:
  # Start a group and print its invite code
  cipherroom groups create design

  # Join with a code someone shared with you
  cipherroom groups join --invite K7QM2XRT9WPA

  # List groups, refreshing from the relay
  cipherroom groups list --refresh`,
	}
)

func init() {
	groupsJoinCmd.Flags().StringVarP(&joinInvite, "invite", "i", "", "invite code (prompted for when omitted)")
	groupsListCmd.Flags().BoolVarP(&groupsRefresh, "refresh", "r", false, "refresh the group list from the relay")

	GroupsCmd.AddCommand(groupsCreateCmd)
	GroupsCmd.AddCommand(groupsJoinCmd)
	GroupsCmd.AddCommand(groupsListCmd)
}

func resetGroupsCommandState() {
	joinInvite = ""
	groupsRefresh = false
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group and print its invite code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !utils.IsValidGroupName(name) {
			fmt.Println(ui.Error.Sprint("✗") + " Invalid group name " + ui.Highlight.Sprint(name))
			fmt.Println(ui.Info.Sprint("→") + " Group names must fit on one line and be at most 80 characters")
			return nil
		}

		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Creating group...")
		defer cleanup()

		res, err := env.session.CreateGroup(cmd.Context(), name)
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		s.FinalMSG = ui.Success.Sprint("✓") + " Created group " + ui.Highlight.Sprint(res.Group.Name) + "\n" +
			"  Group:        " + res.Group.ID + "\n" +
			"  Invite code:  " + ui.Code.Sprint(res.Group.Secret) + "\n" +
			"  Fingerprint:  " + res.Fingerprint + "\n" +
			ui.Warning.Sprint("Warning:") + " Anyone with the invite code can read this group. Share it privately."
		return nil
	},
}

var groupsJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a group with an invite code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		invite := joinInvite
		if invite == "" {
			if !utils.IsTerminal() {
				fmt.Println(ui.Error.Sprint("✗") + " No invite code given")
				fmt.Println(ui.Info.Sprint("→") + " Pass it with " + ui.Flag.Sprint("--invite"))
				return nil
			}
			var err error
			if invite, err = utils.ReadSecret("Invite code: "); err != nil {
				return Logger.ErrorfAndReturn("failed to read invite code: %v", err)
			}
		}

		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Joining group...")
		defer cleanup()

		res, err := env.session.JoinGroup(cmd.Context(), invite)
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		s.FinalMSG = ui.Success.Sprint("✓") + " Joined " + ui.Highlight.Sprint(res.Group.Name) + "\n" +
			"  Group:        " + res.Group.ID + "\n" +
			"  Fingerprint:  " + res.Fingerprint + "\n" +
			ui.Info.Sprint("→") + " Compare the fingerprint with another member to be sure you hold the same key"
		return nil
	},
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the groups you belong to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		groups := env.session.ListGroups(cmd.Context(), groupsRefresh)
		if len(groups) == 0 {
			fmt.Println(ui.Muted.Sprint("No groups yet"))
			fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("cipherroom groups create <name>") + " or " + ui.Code.Sprint("cipherroom groups join"))
			return nil
		}

		for _, g := range groups {
			line := ui.Highlight.Sprint(g.Name) + "  " + g.ID
			if g.Secret == "" {
				line += " " + ui.Warning.Sprint("no invite code cached")
			}
			fmt.Println(line)
		}
		return nil
	},
}
