// Package config loads the daemon configuration: where the ledger, the
// signing agent and the pinning service live, and where local state is kept.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the environment-supplied configuration surface.
type Config struct {
	HTTPPort     string `mapstructure:"http_port"`
	LedgerRPC    string `mapstructure:"ledger_rpc"`
	WalletRPC    string `mapstructure:"wallet_rpc"`
	PinEndpoint  string `mapstructure:"pin_endpoint"`
	PinAPIKey    string `mapstructure:"pin_api_key"`
	PinSecretKey string `mapstructure:"pin_secret_key"`
	CatalogPath  string `mapstructure:"catalog_path"`
	JournalPath  string `mapstructure:"journal_path"`
}

// Load reads the config file at path and applies MARKETD_* environment
// overrides. Pinning credentials are out-of-band: they come from the
// environment in any real deployment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("http_port", "5000")
	v.SetDefault("ledger_rpc", "http://localhost:26657")
	v.SetDefault("wallet_rpc", "http://localhost:8575")
	v.SetDefault("pin_endpoint", "https://api.pinata.cloud/pinning/pinFileToIPFS")
	// Credentials default empty so environment overrides bind to them.
	v.SetDefault("pin_api_key", "")
	v.SetDefault("pin_secret_key", "")
	v.SetDefault("catalog_path", "./data/catalog.db")
	v.SetDefault("journal_path", "./data/journal")

	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus environment overrides apply.
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}
