package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/storm"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "storm.toml", `
backend = "software"
min_capacity = 64
growth_factor = 2.0
max_buffer_size = 1048576
workers = 4

[[channels]]
name = "widths"
policy = "fallback"
fallback = [2.0]

[[channels]]
name = "indices"
policy = "drop"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "software", cfg.Backend)
	assert.Equal(t, 64, cfg.MinCapacity)
	assert.InDelta(t, 2.0, cfg.GrowthFactor, 1e-9)
	assert.Equal(t, uint64(1<<20), cfg.MaxBufferSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, storm.DefaultMaxResolveIterations, cfg.MaxResolveIterations, "unset fields keep defaults")
	assert.Equal(t, storm.DefaultStagingThreshold, cfg.StagingThreshold)

	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, storm.ChannelConfig{Name: "widths", Policy: "fallback", Fallback: []float64{2}}, cfg.Channels[0])
	assert.Equal(t, "drop", cfg.Channels[1].Policy)
	assert.NotEmpty(t, cfg.Options())
}

func TestLoadYAML(t *testing.T) {
	for _, name := range []string{"storm.yaml", "storm.yml"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, `
backend: noop
max_resolve_iterations: 7
channels:
  - name: displayColor
    policy: fallback
    fallback: [1, 0, 1]
`)
			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "noop", cfg.Backend)
			assert.Equal(t, 7, cfg.MaxResolveIterations)
			assert.Equal(t, storm.DefaultMinCapacity, cfg.MinCapacity)
			require.Len(t, cfg.Channels, 1)
			assert.Equal(t, []float64{1, 0, 1}, cfg.Channels[0].Fallback)
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	for _, name := range []string{"empty.toml", "empty.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, name, ""))
			require.NoError(t, err)
			assert.Equal(t, storm.DefaultConfig(), cfg)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		target  error
	}{
		{"unsupported extension", "storm.json", `{}`, ErrUnsupportedFormat},
		{"negative capacity", "storm.toml", "min_capacity = -1\n", ErrInvalid},
		{"negative workers", "storm.yaml", "workers: -2\n", ErrInvalid},
		{"bad policy", "storm.yaml", "channels:\n  - name: widths\n    policy: clamp\n", ErrInvalid},
		{"unnamed channel", "storm.toml", "[[channels]]\npolicy = \"drop\"\n", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml syntax", "storm.toml", "backend = \n"},
		{"toml unknown field", "storm.toml", "colour = \"red\"\n"},
		{"yaml unknown field", "storm.yaml", "colour: red\n"},
		{"yaml wrong type", "storm.yaml", "min_capacity: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.toml", FormatTOML},
		{"A.TOML", FormatTOML},
		{"dir/b.yaml", FormatYAML},
		{"c.yml", FormatYAML},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatOf("storm")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
