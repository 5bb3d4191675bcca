package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
	"seka-server/internal/util"
	"seka-server/pkg/ledger"
	"seka-server/pkg/matchmaking"
	"seka-server/pkg/room"
	"seka-server/pkg/seka"
)

// Config provides configuration for the Seka server
type Config struct {
	loaded bool
	Addr   string `yaml:"addr"`
	// Redis is optional, without it sessions only live in this process
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	LedgerDriver    string `yaml:"ledgerDriver" envconfig:"ledger_driver"`
	LedgerDSN       string `yaml:"ledgerDsn" envconfig:"ledger_dsn"`
	StartingBalance int    `yaml:"startingBalance" envconfig:"starting_balance"`
	JWT             struct {
		PublicKey  string `yaml:"publicKey" envconfig:"public_key"`
		PrivateKey string `yaml:"privateKey" envconfig:"private_key"`
	} `yaml:"jwt"`
	Log struct {
		Level             string `yaml:"level"`
		Format            string `yaml:"format"`
		DisableAccessLogs bool   `yaml:"disableAccessLogs" envconfig:"disable_access_logs"`
	} `yaml:"log"`
	AllowedOrigins []string           `yaml:"allowedOrigins" envconfig:"allowed_origins"`
	Game           seka.Options       `yaml:"game"`
	Matchmaking    matchmaking.Config `yaml:"matchmaking"`
	Coordinator    room.Config        `yaml:"coordinator"`
}

// DefaultConfig returns a config suitable for local development
func DefaultConfig() Config {
	cfg := Config{
		Addr:            ":5000",
		LedgerDriver:    ledger.DriverSQLite,
		LedgerDSN:       "seka.db",
		StartingBalance: ledger.DefaultStartingBalance,
		AllowedOrigins:  []string{"http://localhost:3000"},
		Game:            seka.DefaultOptions(),
		Matchmaking:     matchmaking.DefaultConfig(),
		Coordinator:     room.DefaultConfig(),
	}

	cfg.Redis.Prefix = "seka"
	cfg.JWT.PublicKey = "keys/public.pem"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Validate returns an error if the config cannot run a server
func (c Config) Validate() error {
	if c.LedgerDriver != ledger.DriverPostgres && c.LedgerDriver != ledger.DriverSQLite {
		return fmt.Errorf("unsupported ledger driver: %s", c.LedgerDriver)
	}

	if c.StartingBalance < 0 {
		return errors.New("startingBalance cannot be negative")
	}

	if c.Matchmaking.MatchInterval <= 0 || c.Matchmaking.SweepInterval <= 0 || c.Coordinator.TickInterval <= 0 {
		return errors.New("intervals must be positive")
	}

	return c.Game.Validate()
}

var config Config

// Instance returns a singleton instance
// If the config hasn't been loaded, it will be loaded
func Instance() Config {
	if !config.loaded {
		if err := Load(); err != nil {
			panic(err)
		}
	}

	return config
}

// Load will load the configuration
// Values come from the defaults, then the YAML file, then SEKA_* environment variables.
// A missing config file is not an error.
func Load() error {
	cfg := DefaultConfig()

	configFile := util.Getenv("SEKA_CONFIG_FILE", "config.yaml")
	file, err := os.Open(configFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if file != nil {
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return fmt.Errorf("could not parse %s: %w", configFile, err)
		}
	}

	if err := envconfig.Process("seka", &cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.loaded = true
	config = cfg
	return nil
}
