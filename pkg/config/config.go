// Package config loads the build settings and resolves values through an ordered
// override chain.
package config

import (
	"path/filepath"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/dlibbuild/pkg"
)

// FileName is the optional config file in the project root
const FileName = "build.toml"

const (
	Debug   = "Debug"
	Release = "Release"
)

// Config describes all configuration options
type Config struct {
	Configuration string `usage:"Configuration to build (Debug or Release). Defaults to Debug locally and Release on CI servers"`
	Solution      string `default:"DlibDotNet.sln" usage:"Solution file relative to the project root"`
	Progress      bool   `default:"false" usage:"Show a progress bar instead of task output"`
	Log           struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSON lines instead of pretty console messages"`
	}
	Archive struct {
		Format string `default:"xz" usage:"Compression used for the package archive (xz or br)"`
	}
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for it. Values are read
// from BUILD_* environment variables and <projectRoot>/build.toml. Command line flags are
// handled by the CLI.
func Loader(projectRoot string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		EnvPrefix:        "BUILD",
		Files:            []string{filepath.Join(projectRoot, FileName)},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load is a shortcut for Loader() followed by Load() and Validate()
func Load(projectRoot string) (*Config, error) {
	cfg, loader := Loader(projectRoot)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if cfg.Configuration != "" {
		normalized, err := NormalizeConfiguration(cfg.Configuration)
		if err != nil {
			return err
		}
		cfg.Configuration = normalized
	}

	if _, ok := logLevels[strings.ToLower(cfg.Log.Level)]; !ok {
		return eris.Errorf("invalid value for log.level: %s", cfg.Log.Level)
	}

	if !isArchiveFormat(cfg.Archive.Format) {
		return eris.Errorf("invalid value for archive.format: %s (must be one of %s)",
			cfg.Archive.Format, strings.Join(pkg.ArchiveFormats, ", "))
	}

	if cfg.Solution == "" {
		return eris.New("solution must not be empty")
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	level, ok := logLevels[strings.ToLower(cfg.Log.Level)]
	if !ok {
		return zerolog.InfoLevel
	}
	return level
}

// NormalizeConfiguration accepts Debug and Release in any casing
func NormalizeConfiguration(value string) (string, error) {
	switch strings.ToLower(value) {
	case "debug":
		return Debug, nil
	case "release":
		return Release, nil
	}

	return "", eris.Errorf("invalid configuration %s (must be Debug or Release)", value)
}

func isArchiveFormat(format string) bool {
	for _, known := range pkg.ArchiveFormats {
		if format == known {
			return true
		}
	}
	return false
}
