package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sil", cfg.Boundary)
	assert.Equal(t, "voicecluster.db", cfg.IndexPath)

	s, err := cfg.BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, "triphone", s.Name())

	inv, err := cfg.Inventory()
	require.NoError(t, err)
	assert.True(t, inv.Contains("sil"))

	_, err = cfg.Dictionary()
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestBuildSchemaMinimalSeparators(t *testing.T) {
	cfg := &Config{Schema: Schema{Name: "tri", Separators: "-+"}}
	s, err := cfg.BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())

	l, err := label.Parse("ax-b+eh", s)
	require.NoError(t, err)
	assert.Equal(t, "b", l.CentralPhone())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicecluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
schema:
  name: accent
  features: [Accent, Mora]
variance_floors: true
index: /tmp/x.db
`), 0o644))
	t.Setenv("VOICECLUSTER_BOUNDARY", "pau")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.EqualValues(t, "json", cfg.Log.Format)
	assert.True(t, cfg.VarianceFloors)
	assert.Equal(t, "pau", cfg.Boundary)
	assert.Equal(t, "/tmp/x.db", cfg.IndexPath)

	s, err := cfg.BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, []string{"LeftPhone", "CentralPhone", "RightPhone", "Accent", "Mora"}, s.Features())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
