// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Signing  SigningConfig  `yaml:"signing" mapstructure:"signing"`
	Raster   RasterConfig   `yaml:"raster" mapstructure:"raster"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CatalogConfig configures the STAC catalog used for fallback scene search.
type CatalogConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxCloud    float64 `yaml:"max_cloud" mapstructure:"max_cloud"`
	SearchDelta float64 `yaml:"search_delta" mapstructure:"search_delta"`
}

// SigningConfig configures the asset URL signing endpoint. An empty endpoint
// disables signing entirely.
type SigningConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	HostSuffix  string `yaml:"host_suffix" mapstructure:"host_suffix"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RasterConfig configures remote raster access.
type RasterConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerHost int `yaml:"rate_per_host" mapstructure:"rate_per_host"`
}

// ClassifyConfig holds pipeline defaults that jobs may override.
type ClassifyConfig struct {
	Collection    string  `yaml:"collection" mapstructure:"collection"`
	NumTrees      int     `yaml:"num_trees" mapstructure:"num_trees"`
	ROIPaddingDeg float64 `yaml:"roi_padding_deg" mapstructure:"roi_padding_deg"`
	MaxDimension  int     `yaml:"max_dimension" mapstructure:"max_dimension"`
}

// StoreConfig configures the run-history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the classification HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.url", "https://earth-search.aws.element84.com/v1")
	v.SetDefault("catalog.timeout_secs", 30)
	v.SetDefault("catalog.max_cloud", 30)
	v.SetDefault("catalog.search_delta", 0.01)
	v.SetDefault("signing.endpoint", "")
	v.SetDefault("signing.host_suffix", "blob.core.windows.net")
	v.SetDefault("signing.timeout_secs", 15)
	v.SetDefault("raster.timeout_secs", 60)
	v.SetDefault("raster.rate_per_host", 20)
	v.SetDefault("classify.collection", "sentinel-2-l2a")
	v.SetDefault("classify.num_trees", 50)
	v.SetDefault("classify.roi_padding_deg", 0.5)
	v.SetDefault("classify.max_dimension", 1000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "landcover.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger. Output goes to stderr so that
// stdout stays reserved for machine-readable results.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
