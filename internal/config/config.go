package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/geoarrow/distbuild/internal/observability"
	"github.com/geoarrow/distbuild/internal/pipeline"
	"github.com/geoarrow/distbuild/internal/targets"
)

// Config represents the build configuration
type Config struct {
	Root           string          `mapstructure:"root" validate:"required"`
	Entry          string          `mapstructure:"entry" validate:"required"`
	OutDir         string          `mapstructure:"out_dir" validate:"required"`
	GlobalName     string          `mapstructure:"global_name" validate:"required"`
	Globals        []GlobalMapping `mapstructure:"globals" validate:"dive"`
	Tsconfig       string          `mapstructure:"tsconfig"`
	LanguageTarget string          `mapstructure:"language_target" validate:"required"`
	PackageJSON    string          `mapstructure:"package_json"`
	Parallelism    int             `mapstructure:"parallelism" validate:"min=1,max=64"`
	DTSBundler     string          `mapstructure:"dts_bundler"`
	DTSTimeout     time.Duration   `mapstructure:"dts_timeout" validate:"gt=0"`
	MetricsFile    string          `mapstructure:"metrics_file"`
	Debug          bool            `mapstructure:"debug"`

	Tracing observability.TracerConfig `mapstructure:"tracing"`
}

// GlobalMapping names the browser global that provides an external module
// in the UMD bundle. Module names are kept as list entries because they
// contain dots, which viper would otherwise split into nested keys.
type GlobalMapping struct {
	Module string `mapstructure:"module" yaml:"module" json:"module" validate:"required"`
	Name   string `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
}

// entryExtensions lists the entry point extensions esbuild can compile
var entryExtensions = []string{".ts", ".tsx", ".mts", ".js", ".mjs"}

// Load loads configuration from file and environment variables.
// An empty configFile searches for distbuild.yaml in the working directory.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("distbuild")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	// Enable environment variable support with underscore replacer
	v.SetEnvPrefix("DISTBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	def := targets.DefaultOptions()

	// Layout defaults
	v.SetDefault("root", ".")
	v.SetDefault("entry", def.Entry)
	v.SetDefault("out_dir", def.OutDir)
	v.SetDefault("global_name", def.GlobalName)
	v.SetDefault("globals", []map[string]string{
		{"module": "@deck.gl/core", "name": "deck"},
		{"module": "@deck.gl/layers", "name": "deck"},
		{"module": "apache-arrow", "name": "Arrow"},
	})

	// Compiler defaults
	v.SetDefault("tsconfig", "tsconfig.json")
	v.SetDefault("language_target", "es2020")
	v.SetDefault("package_json", "package.json")
	v.SetDefault("parallelism", 4)
	v.SetDefault("dts_bundler", "")
	v.SetDefault("dts_timeout", "2m")
	v.SetDefault("metrics_file", "")
	v.SetDefault("debug", false)

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	v.SetDefault("tracing.enabled", tracing.Enabled)
	v.SetDefault("tracing.endpoint", tracing.Endpoint)
	v.SetDefault("tracing.service_name", tracing.ServiceName)
	v.SetDefault("tracing.environment", tracing.Environment)
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("tracing.insecure", tracing.Insecure)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Target paths are joined onto Root by the compiler and the artifact writer
	if !filepath.IsLocal(c.Entry) {
		return fmt.Errorf("entry %s must be a relative path inside root", c.Entry)
	}
	if !filepath.IsLocal(c.OutDir) {
		return fmt.Errorf("out_dir %s must be a relative path inside root", c.OutDir)
	}

	if !hasEntryExtension(c.Entry) {
		return fmt.Errorf("entry %s must be one of %v", c.Entry, entryExtensions)
	}

	if !targets.ValidGlobalName(c.GlobalName) {
		return fmt.Errorf("global_name %q must be a JavaScript identifier path", c.GlobalName)
	}

	if _, err := pipeline.ParseLanguageTarget(c.LanguageTarget); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Globals))
	for _, g := range c.Globals {
		if seen[g.Module] {
			return fmt.Errorf("globals: module %s is mapped more than once", g.Module)
		}
		seen[g.Module] = true
		if !targets.ValidGlobalName(g.Name) {
			return fmt.Errorf("globals: %q for module %s is not an identifier path", g.Name, g.Module)
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	return nil
}

func hasEntryExtension(entry string) bool {
	ext := filepath.Ext(entry)
	for _, allowed := range entryExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// GlobalsMap returns the UMD globals keyed by module name
func (c *Config) GlobalsMap() map[string]string {
	globals := make(map[string]string, len(c.Globals))
	for _, g := range c.Globals {
		globals[g.Module] = g.Name
	}
	return globals
}

// TargetOptions returns the options the target registry is built from
func (c *Config) TargetOptions() targets.Options {
	return targets.Options{
		Entry:      filepath.ToSlash(c.Entry),
		OutDir:     filepath.ToSlash(c.OutDir),
		GlobalName: c.GlobalName,
		Globals:    c.GlobalsMap(),
	}
}

// PipelineConfig returns the settings shared by every target's pipeline
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Root:           c.Root,
		Tsconfig:       c.Tsconfig,
		LanguageTarget: c.LanguageTarget,
		DTSBundler:     c.DTSBundler,
		DTSTimeout:     c.DTSTimeout,
	}
}

// PackageJSONPath returns the package manifest path resolved against Root
func (c *Config) PackageJSONPath() string {
	if c.PackageJSON == "" || filepath.IsAbs(c.PackageJSON) {
		return c.PackageJSON
	}
	return filepath.Join(c.Root, c.PackageJSON)
}
