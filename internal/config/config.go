package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files
	AppName = "orct"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "ORCT"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Default schema file, overridable per run with --schema
	Schema string `mapstructure:"schema"`

	// External diff executable
	DiffTool string `mapstructure:"diff_tool"`

	// Compat holds knobs that preserve legacy tool behaviour. The
	// defaults match the original implementation; they exist so the
	// behaviour is visible and switchable rather than baked in.
	Compat struct {
		// provisioning document naming: "dec" (%08d, legacy writer) or
		// "hex" (%08X transformer ordinals)
		ProvisioningKeyFormat string `mapstructure:"provisioning_key_format"`

		// composite-type substitution depth; the legacy tool resolved
		// EFS items five levels deep but numbered items only one
		NumberedSubstPasses int `mapstructure:"numbered_subst_passes"`
		EfsSubstPasses      int `mapstructure:"efs_subst_passes"`
	} `mapstructure:"compat"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	// Ensure thread safety
	initOnce sync.Once
)

// Initialize sets up the configuration system
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		v = viper.New()

		setDefaults(v)

		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else {
			v.SetConfigName(AppName)
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
			v.AddConfigPath("$HOME/.config/" + AppName)
		}

		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("error reading config file: %w", readErr)
			}
			// Config file not found, using defaults and environment variables
			ConfigLoaded = false
			ConfigFile = ""
		} else {
			ConfigLoaded = true
			ConfigFile = v.ConfigFileUsed()
		}

		if unmarshalErr := v.Unmarshal(&Instance); unmarshalErr != nil {
			err = fmt.Errorf("error parsing config: %w", unmarshalErr)
		}
	})

	return err
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")
	v.SetDefault("schema", "")
	v.SetDefault("diff_tool", "diff")
	v.SetDefault("compat.provisioning_key_format", "dec")
	v.SetDefault("compat.numbered_subst_passes", 1)
	v.SetDefault("compat.efs_subst_passes", 5)
}
