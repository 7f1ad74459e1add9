package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teranos/vsbatch/am"
	"github.com/teranos/vsbatch/db"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
)

// loadConfig loads configuration honouring the persistent --config flag
func loadConfig(cmd *cobra.Command) (*am.Config, *viper.Viper, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, v, err := am.Load(configPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, v, nil
}

// loadValidConfig loads and validates configuration
func loadValidConfig(cmd *cobra.Command) (*am.Config, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// openLedger opens and migrates the run ledger database. Uses logger.Logger for db operations.
func openLedger(cfg *am.Config) (*sql.DB, error) {
	path := cfg.LedgerPath()

	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open ledger at %s", path)
	}
	return database, nil
}
