// Package config loads the command line settings from flags, a config file
// and VOICECLUSTER_ environment variables through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/internal/logging"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/lexicon"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "VOICECLUSTER"

// Schema describes the label layout. An empty feature list selects the
// triphone schema.
type Schema struct {
	Name       string   `mapstructure:"name"`
	Features   []string `mapstructure:"features"`
	Separators string   `mapstructure:"separators"`
}

// Config holds every setting the commands read.
type Config struct {
	Log            logging.Config `mapstructure:"log"`
	Schema         Schema         `mapstructure:"schema"`
	InventoryPath  string         `mapstructure:"inventory"`
	GroupsPath     string         `mapstructure:"groups"`
	DictPath       string         `mapstructure:"dict"`
	IndexPath      string         `mapstructure:"index"`
	Boundary       string         `mapstructure:"boundary"`
	VarianceFloors bool           `mapstructure:"variance_floors"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", string(logging.FormatText))
	v.SetDefault("schema.name", "triphone")
	v.SetDefault("boundary", "sil")
	v.SetDefault("index", "voicecluster.db")
}

// Load reads path, when set, and the environment into a Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// BuildSchema creates the label schema the config names.
func (c *Config) BuildSchema() (*label.Schema, error) {
	if len(c.Schema.Features) == 0 && c.Schema.Separators == "" {
		return label.DefaultTriphoneSchema(), nil
	}
	var opts []label.SchemaOption
	if c.Schema.Separators != "" {
		opts = append(opts, label.WithSeparators(c.Schema.Separators))
	}
	return label.NewSchema(c.Schema.Name, c.Schema.Features, opts...)
}

// Inventory loads the configured phoneme inventory, or the default set.
func (c *Config) Inventory() (*lexicon.Inventory, error) {
	if c.InventoryPath == "" {
		return lexicon.DefaultInventory(), nil
	}
	return lexicon.LoadInventoryFile(c.InventoryPath)
}

// Dictionary loads the configured pronunciation dictionary.
func (c *Config) Dictionary() (*lexicon.Dictionary, error) {
	if c.DictPath == "" {
		return nil, fmt.Errorf("%w: no dictionary configured", errs.ErrReference)
	}
	return lexicon.LoadDictionaryFile(c.DictPath)
}
