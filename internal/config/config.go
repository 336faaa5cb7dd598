package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cmdcorpus/internal/logger"
)

const (
	EnvPrefix         = "CMDCORPUS"
	DefaultConfigName = "cmdcorpus"
)

// Dataset names understood by the ingest commands.
const (
	DatasetAtomicRedTeam = "atomic-red-team"
	DatasetLOLBAS        = "lolbas"
	DatasetMetta         = "metta"
	DatasetThreatActor   = "threat-actor-procedures"
	DatasetPowerPeeler   = "powerpeeler"
)

var ErrUnknownDataset = errors.New("unknown dataset")

var cfgLog = logger.New("config")

// KafkaConfig is read from the environment with the broker/topic names the
// pipeline has always used.
type KafkaConfig struct {
	Broker  string `envconfig:"KAFKA_BROKER" default:"localhost:9092" validate:"required"`
	Topic   string `envconfig:"KAFKA_TOPIC" default:"cmd-records" validate:"required"`
	GroupID string `envconfig:"KAFKA_GROUP_ID" default:"cmdcorpus-builder-group" validate:"required"`
}

// DatasetConfig locates one source dataset on disk.
type DatasetConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// Config represents the cmdcorpus configuration
type Config struct {
	LogLevel       string                   `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error"`
	NoColor        bool                     `mapstructure:"no_color"`
	DBPath         string                   `mapstructure:"db_path" validate:"required"`
	IndexPath      string                   `mapstructure:"index_path" validate:"required"`
	OutputDir      string                   `mapstructure:"output_dir" validate:"required"`
	Compress       bool                     `mapstructure:"compress"`
	CacheSize      int                      `mapstructure:"cache_size" validate:"gte=0"`
	BatchSize      int                      `mapstructure:"batch_size" validate:"gt=0"`
	ListenAddr     string                   `mapstructure:"listen_addr" validate:"required"`
	MitrePath      string                   `mapstructure:"mitre_path"`
	TechniqueCSV   string                   `mapstructure:"technique_csv"`
	EnableRuleSets []string                 `mapstructure:"enable_rulesets"`
	Datasets       map[string]DatasetConfig `mapstructure:"datasets" validate:"dive"`
	Kafka          KafkaConfig              `mapstructure:"-"`

	// ConfigFile is the file viper actually read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("no_color", false)
	v.SetDefault("db_path", "corpus/records.db")
	v.SetDefault("index_path", "corpus/records.bleve")
	v.SetDefault("output_dir", "corpus/datasets")
	v.SetDefault("compress", false)
	v.SetDefault("cache_size", 4096)
	v.SetDefault("batch_size", 100)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("mitre_path", "data/enterprise-attack.json")
	v.SetDefault("technique_csv", "data/mitre_techniques.csv")
	v.SetDefault("enable_rulesets", []string{})
	v.SetDefault("datasets."+DatasetAtomicRedTeam+".path", "/tmp/atomic-red-team/atomics")
	v.SetDefault("datasets."+DatasetLOLBAS+".path", "/tmp/lolbas.json")
	v.SetDefault("datasets."+DatasetMetta+".path", "/tmp/metta")
	v.SetDefault("datasets."+DatasetThreatActor+".path", "/tmp/ThreatActorProcedures-MITRE-ATTACK/README.md")
	v.SetDefault("datasets."+DatasetPowerPeeler+".path", "/tmp/PowerPeeler/samples/100-samples")
}

// Load merges defaults, an optional .env file, the config file, CMDCORPUS_*
// environment variables and explicitly set flags, then validates the result.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		}
	}

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		cfgLog.Debug("No configuration file found, using defaults/env/flags")
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
		cfgLog.Debug("Using configuration file %s", cfg.ConfigFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil || !f.Changed {
				return
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("error binding flags: %w", bindErr)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	if err := envconfig.Process("", &cfg.Kafka); err != nil {
		return nil, fmt.Errorf("error reading kafka environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.SetGlobalLevelFromString(cfg.LogLevel)
	logger.SetColored(!cfg.NoColor)
	return cfg, nil
}

// DatasetPath returns the configured location of the named dataset.
func (c *Config) DatasetPath(name string) (string, error) {
	ds, ok := c.Datasets[name]
	if !ok {
		return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownDataset, name, strings.Join(c.DatasetNames(), ", "))
	}
	return ds.Path, nil
}

// DatasetNames lists configured datasets in sorted order.
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
