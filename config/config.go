// Package config loads the YAML settings shared by the predictor and the
// trainer.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v2"

	"edupredict/ml"
)

const (
	EnvConfigPath = "EDUPREDICT_CONFIG"
	EnvModelsDir  = "EDUPREDICT_MODELS_DIR"

	DefaultPath         = "config.yaml"
	DefaultModelsDir    = "./models"
	DefaultModelVersion = "2.0.0"
)

type Config struct {
	ModelsDir    string   `yaml:"models_dir"`
	ModelVersion string   `yaml:"model_version"`
	Log          Log      `yaml:"log"`
	Training     Training `yaml:"training"`
}

// Log configures the stderr console sink and an optional rotated file.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Training struct {
	Data            string  `yaml:"data"`
	Encoding        string  `yaml:"encoding"`
	Database        string  `yaml:"database"`
	MaxP            int     `yaml:"max_p"`
	MaxD            int     `yaml:"max_d"`
	MaxQ            int     `yaml:"max_q"`
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf"`
	TestRatio       float64 `yaml:"test_ratio"`
	Seed            int64   `yaml:"seed"`
}

func Default() *Config {
	search := ml.DefaultSearchConfig()
	return &Config{
		ModelsDir:    DefaultModelsDir,
		ModelVersion: DefaultModelVersion,
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Training: Training{
			Data:            "data/datos_educativos.csv",
			Encoding:        "utf-8",
			MaxP:            search.MaxP,
			MaxD:            search.MaxD,
			MaxQ:            search.MaxQ,
			MaxDepth:        8,
			MinSamplesSplit: 10,
			MinSamplesLeaf:  5,
			TestRatio:       0.2,
			Seed:            42,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// EDUPREDICT_MODELS_DIR wins over the file.
func Load(path string) (*Config, error) {
	config := Default()
	file, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if dir := os.Getenv(EnvModelsDir); dir != "" {
		config.ModelsDir = dir
	}
	if config.ModelsDir == "" {
		config.ModelsDir = DefaultModelsDir
	}
	if config.ModelVersion == "" {
		config.ModelVersion = DefaultModelVersion
	}
	return config, nil
}

// Path returns the config location from the environment.
func Path() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return DefaultPath
}
