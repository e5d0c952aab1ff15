package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the evidence and feedback tables for the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadBase()
		if err != nil {
			return err
		}
		c := &components{cfg: cfg, log: log}
		defer c.close()

		if err := c.openDatabase(cmd.Context()); err != nil {
			return err
		}
		log.Info("migration complete", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}
