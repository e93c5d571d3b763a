package cmd

import (
	"github.com/spf13/cobra"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Loads the config file and runs the full validation pass: rule
references must resolve without cycles, policies must reference known
rules, and entitlement definitions must be well-formed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServerConfig()
		if err != nil {
			return logError(err, "", "configuration is invalid")
		}
		logSuccess("configuration is valid (%d rules, %d policies, %d entitlements)",
			len(cfg.Rules), len(cfg.Policies), len(cfg.Entitlements))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	f.bindConfigFlag(configValidateCmd.Flags())

	_ = configValidateCmd.MarkFlagRequired("config")
}
