package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/example/phonestore/internal/config"
	"github.com/example/phonestore/internal/database"
	"github.com/example/phonestore/internal/logging"
	"github.com/example/phonestore/internal/services"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)

			if _, err := database.Connect(cfg.DatabaseURL, database.Options{Debug: cfg.DBDebug, Migrate: true}); err != nil {
				return err
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}

func newPromoteAdminCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "promote-admin <email>",
		Short: "Grant the admin role to an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)

			db, err := database.Connect(cfg.DatabaseURL, database.Options{Debug: cfg.DBDebug})
			if err != nil {
				return err
			}
			user, err := services.NewUserService(db, cfg.JWTSecret, cfg.TokenExpires).PromoteAdmin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", user.Email)
			return nil
		},
	}
}
