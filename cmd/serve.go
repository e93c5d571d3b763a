package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/custodia-project/custodia/internal/api"
	"github.com/custodia-project/custodia/internal/audit"
	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/engine"
	"github.com/custodia-project/custodia/internal/service"
	"github.com/custodia-project/custodia/internal/store"
	"github.com/custodia-project/custodia/internal/tasks"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Custodia server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServerConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		addr := cfg.Server.Addr
		if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
			addr = flagAddr
		}

		log.Info().Msg("Initializing storage...")
		var (
			decisions   core.DecisionStore
			entries     core.AuditEntryStore
			checkpoints core.CheckpointStore
		)
		switch cfg.Storage.Type {
		case "postgres":
			pool, err := store.NewPostgresPool(cmd.Context(), cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("connecting to postgres: %w", err)
			}
			defer pool.Close()

			pg := store.NewPostgres(pool)
			if err := pg.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating postgres schema: %w", err)
			}
			decisions, entries, checkpoints = pg, pg, pg
		default:
			mem := store.NewMemory()
			decisions, entries, checkpoints = mem, mem, mem
		}

		catalog := store.NewCatalog()
		catalog.Seed(cfg.Rules, cfg.Policies, cfg.Entitlements)

		var ledger core.AuditLedger = audit.NewLedger(entries)
		if cfg.Audit.MirrorPath != "" {
			mirror, err := audit.NewFileMirror(ledger, cfg.Audit.MirrorPath)
			if err != nil {
				return fmt.Errorf("opening audit mirror: %w", err)
			}
			defer func() {
				_ = mirror.Close()
			}()
			ledger = mirror
		}

		checkpointer := audit.NewCheckpointer(
			entries, checkpoints,
			[]byte(cfg.Audit.HMACKey), cfg.Audit.HMACKeyID,
		)

		log.Info().Msg("Initializing evaluation engine...")
		manager := engine.NewManager(cfg.Policies, cfg.Rules)
		resolver := engine.NewResolver(manager, catalog, engine.TieBreak(cfg.Engine.TieBreak))

		decisionSvc := service.NewDecisionService(
			resolver, decisions, ledger,
			service.ChainDimension(cfg.Audit.ChainDimension),
		)
		entitlementSvc := service.NewEntitlementService(catalog, ledger)
		auditSvc := service.NewAuditService(ledger, entries, checkpointer, checkpoints)

		taskManager := tasks.NewManager()
		sweeper := service.NewSweeper(decisions, catalog, catalog, ledger)
		sweeper.Register(taskManager)

		// setup server
		srv := api.NewServer(manager, taskManager, catalog, decisionSvc, entitlementSvc, auditSvc)

		if cfg.Server.AdminSecret == "" {
			log.Warn().Msg("no admin secret configured, admin surface is disabled")
		}

		server := &http.Server{
			Addr:         addr,
			Handler:      srv.Routes([]byte(cfg.Server.AdminSecret)),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to listen on (overrides config)")
	f.bindConfigFlag(serveCmd.Flags())
}
