package cmd

import (
	"fmt"

	"therapyportal/config"
	"therapyportal/db"
	"therapyportal/difficulty"
	"therapyportal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *db.Store
	trainer *difficulty.Trainer
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug("database opened", zap.String("path", cfg.Database.Path))

	trainer := &difficulty.Trainer{
		Path:      cfg.Models.Path,
		ModelType: cfg.Models.Type,
		Samples:   cfg.Models.Samples,
		Seed:      cfg.Models.Seed,
		Recorder:  store,
		Logger:    logger.Named("trainer"),
	}
	return &app{cfg: cfg, logger: logger, store: store, trainer: trainer}, nil
}

func (a *app) service(observer difficulty.Observer) (*difficulty.Service, error) {
	locale, err := language.Parse(a.cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", a.cfg.Locale, err)
	}
	return difficulty.NewService(a.trainer, difficulty.Options{
		RetrainOnCorrupt: a.cfg.Models.RetrainOnCorrupt,
		CacheSize:        a.cfg.Models.CacheSize,
		Locale:           locale,
		Logger:           a.logger.Named("difficulty"),
		Observer:         observer,
	})
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Sync()
}
