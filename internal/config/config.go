package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPackageName = "il2cpp_types"
	DefaultOutputPath  = "./output/"
)

type Config struct {
	PackageName    string `toml:"package_name"`
	OutputPath     string `toml:"output_path"`
	RuntimePackage string `toml:"runtime_package"` // Empty selects generation.DefaultRuntimePackage
	SingleFile     bool   `toml:"single_file"`
	Filter         Filter `toml:"filter"`
	Nuget          Nuget  `toml:"nuget"`
}

type Filter struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Nuget names a package whose assemblies are used as input.
type Nuget struct {
	Package string `toml:"package"`
	Version string `toml:"version"` // Constraint such as ">= 1.2, < 2"
	Source  string `toml:"source"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.PackageName == "" {
		cfg.PackageName = DefaultPackageName
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}
}
