package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/custodia-project/custodia/internal/audit"
	"github.com/custodia-project/custodia/internal/cliconfig"
	"github.com/custodia-project/custodia/internal/config"
	"github.com/custodia-project/custodia/internal/engine"
	"github.com/custodia-project/custodia/internal/service"
	"github.com/custodia-project/custodia/internal/store"
	"github.com/custodia-project/custodia/pkg/client"
)

var f = NewFactory()

type Factory struct {
	// RemoteAddr is the address of the Custodia server to connect to.
	RemoteAddr string

	// ConfigPath points at the server configuration file, used by serve and
	// by commands that evaluate locally.
	ConfigPath string
}

func NewFactory() *Factory {
	return &Factory{}
}

// GetClient returns an authenticated HTTP client for remote operations.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.RemoteAddr // prio 1: command-line flag
	if server == "" {
		server = viper.GetString(CustodiaAddrKey) // prio 2: config/env
	}
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set CUSTODIA_ADDR)")
	}

	var token string
	if cfg, err := cliconfig.Load(); err == nil {
		if cred, err := cfg.GetCredential(server); err == nil { // token prio 1: saved credential
			token = cred.Token
		}
	}

	if envToken := os.Getenv("CUSTODIA_TOKEN"); envToken != "" { // token prio 2: env var
		token = envToken
	}

	return client.New(server, client.WithAuthToken(token)), nil
}

func (f *Factory) LoadServerConfig() (*config.Config, error) {
	if f.ConfigPath == "" {
		return nil, fmt.Errorf("config file not specified (use --config)")
	}
	return config.Load(f.ConfigPath)
}

// GetLocalService builds an in-process decision service from the config
// file. Decisions and audit entries land in memory and are gone when the
// command exits; useful for dry-running policies without a server.
func (f *Factory) GetLocalService() (*service.DecisionService, error) {
	cfg, err := f.LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	catalog := store.NewCatalog()
	catalog.Seed(cfg.Rules, cfg.Policies, cfg.Entitlements)

	mem := store.NewMemory()
	ledger := audit.NewLedger(mem)

	manager := engine.NewManager(cfg.Policies, cfg.Rules)
	resolver := engine.NewResolver(manager, catalog, engine.TieBreak(cfg.Engine.TieBreak))

	return service.NewDecisionService(
		resolver,
		mem,
		ledger,
		service.ChainDimension(cfg.Audit.ChainDimension),
	), nil
}

func (f *Factory) bindConfigFlag(flags *pflag.FlagSet) {
	flags.StringVarP(&f.ConfigPath, "config", "f", "", "The Custodia server config file to use")
}
