// Package config loads the portal's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Models struct {
		Type             string `yaml:"type"`
		Path             string `yaml:"path"`
		Samples          int    `yaml:"samples"`
		Seed             int64  `yaml:"seed"`
		RetrainOnCorrupt bool   `yaml:"retrain_on_corrupt"`
		Watch            bool   `yaml:"watch"`
		CacheSize        int    `yaml:"cache_size"`
	} `yaml:"models"`
	Cohorts struct {
		LookbackDays int `yaml:"lookback_days"`
		// Interval re-clusters the population while serving. Zero disables it.
		Interval time.Duration `yaml:"interval"`
	} `yaml:"cohorts"`
	Locale string `yaml:"locale"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Database.Path = "data/portal.db"
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 30
	c.Models.Type = "svm"
	c.Models.Path = "ai_models/svm_model.json"
	c.Models.Samples = 500
	c.Models.Watch = true
	c.Models.CacheSize = 1024
	c.Cohorts.LookbackDays = 30
	c.Cohorts.Interval = time.Hour
	c.Locale = "en"
	return &c
}

// Load reads path over the defaults. When path does not exist, the file of
// the same name in the parent directory is tried. If neither exists the
// defaults are returned.
func Load(path string) (*Config, error) {
	c := Default()
	for _, candidate := range []string{path, filepath.Join("..", filepath.Base(path))} {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", candidate, err)
		}
		return c, c.Validate()
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Http.Port <= 0 || c.Http.Port > 65535:
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	case c.Models.Path == "":
		return errors.New("models.path is required")
	case c.Models.Samples < 0:
		return fmt.Errorf("models.samples must not be negative, got %d", c.Models.Samples)
	case c.Cohorts.Interval < 0:
		return fmt.Errorf("cohorts.interval must not be negative, got %s", c.Cohorts.Interval)
	case c.Database.Path == "":
		return errors.New("database.path is required")
	}
	return nil
}
