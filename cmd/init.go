package cmd

import (
	"fmt"

	"github.com/PolarWolf314/cipherroom/internal/configs"
	"github.com/PolarWolf314/cipherroom/internal/ui"
	"github.com/PolarWolf314/cipherroom/internal/utils"

	"github.com/spf13/cobra"
)

var (
	initName  string
	initRelay string
)

func init() {
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "display name (defaults to your username)")
	initCmd.Flags().StringVar(&initRelay, "relay", "", "relay address, e.g. redis://host:6379/0")
}

func resetInitCommandState() {
	initName = ""
	initRelay = ""
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create your cipherroom identity",
	Long: `Creates the local client configuration with a new sender identity.

Running init again keeps the existing identity; --relay can be used to
change the relay address at any time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting init command")

		settings, err := configs.ResolveSettings()
		if err != nil {
			return Logger.ErrorfAndReturn("failed to resolve settings: %v", err)
		}

		existing, err := configs.LoadClientConfig(settings.ConfigPath)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to load config: %v", err)
		}
		fresh := existing.Identity.SenderRef == ""

		name := utils.SanitizeDisplayName(initName)
		if name == "" {
			name = utils.DefaultDisplayName()
		}

		config, err := configs.EnsureClientConfig(settings, name)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to create identity: %v", err)
		}

		if initRelay != "" {
			config.Relay.RedisURL = initRelay
			if err := configs.SaveClientConfig(settings.ConfigPath, config); err != nil {
				return Logger.ErrorfAndReturn("failed to save config: %v", err)
			}
			Logger.Infof("Relay set to %s", initRelay)
		}

		if fresh {
			fmt.Println(ui.Success.Sprint("✓") + " Created identity for " + ui.Highlight.Sprint(config.Identity.DisplayName))
		} else {
			fmt.Println(ui.Success.Sprint("✓") + " Already initialized as " + ui.Highlight.Sprint(config.Identity.DisplayName))
		}
		fmt.Println("  Sender:  " + config.Identity.SenderRef)
		fmt.Println("  Config:  " + ui.Path.Sprint(settings.ConfigPath))
		fmt.Println("  Relay:   " + config.RedisURL())
		if fresh {
			fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("cipherroom groups create <name>") + " to start a group")
		}
		return nil
	},
}
