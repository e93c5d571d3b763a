package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodia-project/custodia/internal/cliconfig"
	"github.com/custodia-project/custodia/pkg/client"
)

var loginCmd = &cobra.Command{
	Use:   "login TOKEN",
	Short: "Save an admin token for a Custodia server",
	Long: `Verifies the given admin JWT against the server and saves it locally so
future admin commands (entitlements, checkpoints, policy management) are
authenticated without passing the token every time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loginToken := args[0]
		if loginToken == "" {
			return fmt.Errorf("token cannot be empty")
		}

		server := viper.GetString(CustodiaAddrKey)
		if f.RemoteAddr != "" {
			server = f.RemoteAddr
		}
		if server == "" {
			return fmt.Errorf("server address not configured, provide via --server or env")
		}
		u, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("parsing server URL: %w", err)
		}

		// verify against an admin-only route before saving
		cli := client.New(server, client.WithAuthToken(loginToken))

		log.Info().Msgf("Verifying token against server %q...", u.Host)

		if _, err := cli.ListPolicies(cmd.Context()); err != nil {
			log.Error().Msgf("%s token was not accepted by the server", redCross)
			log.Error().Msgf("error: %v", err)
			return BeQuietError{}
		}

		cfg, err := cliconfig.Load()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = &cliconfig.CLIConfig{}
		}
		if cfg.Credentials == nil {
			cfg.Credentials = make(map[string]*cliconfig.Credential)
		}
		cfg.Credentials[u.Host] = &cliconfig.Credential{
			Token: loginToken,
		}
		if err := cliconfig.Save(cfg); err != nil {
			return logError(err, "", "token verified but could not save credentials")
		}

		logSuccess("saved credentials for %s", bold(u.Host))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
