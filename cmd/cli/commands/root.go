// Package commands implements the sweeply operator CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sweeply/sweeply/internal/config"
	"github.com/sweeply/sweeply/internal/db"
	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/geo"
	"github.com/sweeply/sweeply/internal/logger"
	"github.com/sweeply/sweeply/internal/matching"
	"github.com/sweeply/sweeply/internal/notify"
)

var (
	// cfg and database are initialized once by the root pre-run and shared
	// by every subcommand.
	cfg      config.Config
	database *gorm.DB
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sweeply",
	Short: "Sweeply CLI - operator tooling for the matching and dispatch engine",
	Long: `Sweeply CLI is an operator tool for inspecting bookings and providers,
re-running dispatch for stuck jobs, and triggering arrival sweeps by hand.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.Initialize()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		database, err = db.New(db.Options{
			Host:       cfg.DBHost,
			Port:       cfg.DBPort,
			User:       cfg.DBUser,
			Password:   cfg.DBPassword,
			DBName:     cfg.DBName,
			SSLEnabled: cfg.DBSSL,
			LogLevel:   gormlogger.Silent,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(jobsCmd)
	RootCmd.AddCommand(providersCmd)
	RootCmd.AddCommand(sweepCmd)
}

// buildDispatcher assembles a dispatcher over the configured geo index, or
// over an index warmed from the provider table when redis is not
// configured.
func buildDispatcher(ctx context.Context) (*matching.Dispatcher, error) {
	var index geo.Index
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		mem := geo.NewMemoryIndex()
		var providers []models.Provider
		if err := database.Where("active = ?", true).Find(&providers).Error; err != nil {
			return nil, fmt.Errorf("failed to warm geo index: %w", err)
		}
		for _, p := range providers {
			_ = mem.Upsert(ctx, p.ID, p.Lat, p.Lon)
		}
		index = mem
	}

	weights, err := matching.NewWeights(cfg.WeightRating, cfg.WeightDistance, cfg.WeightAcceptance, cfg.WeightPunctuality)
	if err != nil {
		return nil, err
	}

	return matching.NewDispatcher(database, index, notify.NewLogNotifier(), weights, matching.DispatchConfig{
		TopK:          cfg.TopK,
		PoolLimit:     cfg.PoolLimit,
		OfferTTL:      cfg.OfferTTL,
		RedispatchTTL: cfg.RedispatchTTL,
	}), nil
}

// printJSON renders a command result as indented JSON.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
