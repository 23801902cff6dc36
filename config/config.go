// Package config loads storm.Config from TOML or YAML files.
//
//	cfg, err := config.Load("storm.toml")
//	if err != nil {
//		return err
//	}
//	reg, err := storm.NewResourceRegistry(cfg.Options()...)
//
// Fields missing from the file keep the values of storm.DefaultConfig.
// Unknown fields are errors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/storm"
)

// Format is a configuration file format.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither TOML
	// nor YAML.
	ErrUnsupportedFormat = errors.New("config: unsupported format")

	// ErrInvalid is returned when a decoded config fails validation.
	ErrInvalid = errors.New("config: invalid")
)

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and validates the config at path.
func Load(path string) (storm.Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return storm.Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return storm.Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return storm.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	storm.Logger().Info("config: loaded", "path", path, "format", string(format))
	return cfg, nil
}

// Parse decodes and validates data in the given format.
func Parse(data []byte, format Format) (storm.Config, error) {
	cfg := storm.DefaultConfig()
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return storm.Config{}, fmt.Errorf("config: decode toml: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to io.EOF and leaves the defaults.
		if err := dec.Decode(&cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return storm.Config{}, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return storm.Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := cfg.Validate(); err != nil {
		return storm.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}
