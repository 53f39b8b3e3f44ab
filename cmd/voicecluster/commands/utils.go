// Package commands implements the voicecluster subcommands.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	voicecluster "github.com/ieee0824/voicecluster-go"
	"github.com/ieee0824/voicecluster-go/acoustic"
	"github.com/ieee0824/voicecluster-go/forest"
	"github.com/ieee0824/voicecluster-go/internal/config"
	"github.com/ieee0824/voicecluster-go/internal/logging"
)

var cfg *config.Config

// LoadConfig reads the config file named by the --config flag, the
// environment and the bound flags. It also configures logging.
func LoadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(viper.GetViper(), viper.GetString("config"))
	if err != nil {
		return err
	}
	c.Log.Output = os.Stderr
	if err := logging.Configure(c.Log); err != nil {
		return err
	}
	cfg = c
	return nil
}

func loadForest(path string) (*forest.Forest, error) {
	schema, err := cfg.BuildSchema()
	if err != nil {
		return nil, err
	}
	return forest.LoadFile(path, schema)
}

func loadVoice(forestPath, modelPath string) (*voicecluster.Voice, error) {
	schema, err := cfg.BuildSchema()
	if err != nil {
		return nil, err
	}
	inv, err := cfg.Inventory()
	if err != nil {
		return nil, err
	}
	opts := []voicecluster.Option{
		voicecluster.WithSchema(schema),
		voicecluster.WithInventory(inv),
		voicecluster.WithBoundary(cfg.Boundary),
		voicecluster.WithVarianceFloors(cfg.VarianceFloors),
	}
	if cfg.DictPath != "" {
		dict, err := cfg.Dictionary()
		if err != nil {
			return nil, err
		}
		opts = append(opts, voicecluster.WithDictionary(dict))
	}
	return voicecluster.NewVoice(forestPath, modelPath, opts...)
}

// saveModels writes mf as binary when binary is set, as text otherwise.
func saveModels(path string, mf *acoustic.MacroFile, binary bool) error {
	if !binary {
		return acoustic.SaveMacroFile(path, mf)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := acoustic.WriteBinary(f, mf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func isBinaryFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return voicecluster.IsBinaryModel(data), nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
