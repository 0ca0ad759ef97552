package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	SFTP      SFTPConfig     `yaml:"sftp" mapstructure:"sftp"`
	Transport string         `yaml:"transport" mapstructure:"transport"`
	Feed      FeedConfig     `yaml:"feed" mapstructure:"feed"`
	Remote    RemoteConfig   `yaml:"remote" mapstructure:"remote"`
	Local     LocalConfig    `yaml:"local" mapstructure:"local"`
	Staging   StagingConfig  `yaml:"staging" mapstructure:"staging"`
	Validate  ValidateConfig `yaml:"validate" mapstructure:"validate"`
	Log       LogConfig      `yaml:"log" mapstructure:"log"`
}

// SFTPConfig holds credentials for the vendor file server. The same
// credentials are used for the import trigger's SSH session.
type SFTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// FeedConfig carries the vendor-specific business constants. Defaults
// are the Viljoen Beverages deployment values; they are injected here
// rather than hardcoded downstream.
type FeedConfig struct {
	SellerID         string `yaml:"seller_id" mapstructure:"seller_id"`
	ArchivePrefix    string `yaml:"archive_prefix" mapstructure:"archive_prefix"`
	StagingPrefix    string `yaml:"staging_prefix" mapstructure:"staging_prefix"`
	FallbackCustomer string `yaml:"fallback_customer" mapstructure:"fallback_customer"`
	CSVEncoding      string `yaml:"csv_encoding" mapstructure:"csv_encoding"`
}

// RemoteConfig describes the remote file layout and import commands.
type RemoteConfig struct {
	ArchiveDir         string `yaml:"archive_dir" mapstructure:"archive_dir"`
	UploadDir          string `yaml:"upload_dir" mapstructure:"upload_dir"`
	TestCommand        string `yaml:"test_command" mapstructure:"test_command"`
	ImportCommand      string `yaml:"import_command" mapstructure:"import_command"`
	CommandTimeoutSecs int    `yaml:"command_timeout_secs" mapstructure:"command_timeout_secs"`
}

// LocalConfig describes the local directory layout.
type LocalConfig struct {
	RawDir     string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ExtractDir string `yaml:"extract_dir" mapstructure:"extract_dir"`
	StagingDir string `yaml:"staging_dir" mapstructure:"staging_dir"`
}

// StagingConfig configures the staging writer.
type StagingConfig struct {
	LookbackDays     int    `yaml:"lookback_days" mapstructure:"lookback_days"`
	DeletePolicy     string `yaml:"delete_policy" mapstructure:"delete_policy"` // "all" or "prefix"
	CreateDir        bool   `yaml:"create_dir" mapstructure:"create_dir"`
	ReuploadExisting bool   `yaml:"reupload_existing" mapstructure:"reupload_existing"`
}

// ValidateConfig configures schema validation policy.
type ValidateConfig struct {
	Policy string `yaml:"policy" mapstructure:"policy"` // "block" or "warn"
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEEDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty defaults register keys that usually arrive via
	// environment only, e.g. credentials; viper drops unregistered env
	// keys during unmarshal.
	v.SetDefault("transport", "sftp")
	v.SetDefault("sftp.host", "")
	v.SetDefault("sftp.port", 22)
	v.SetDefault("sftp.user", "")
	v.SetDefault("sftp.password", "")
	v.SetDefault("feed.csv_encoding", "")
	v.SetDefault("feed.seller_id", "VILJOEN")
	v.SetDefault("feed.archive_prefix", "Vilbev")
	v.SetDefault("feed.staging_prefix", "Viljoenbev")
	v.SetDefault("feed.fallback_customer", "SPAR NORTH RAND (11691)")
	v.SetDefault("remote.archive_dir", "/home/viljoenbev")
	v.SetDefault("remote.upload_dir", "/home/viljoenbev/clean")
	v.SetDefault("remote.test_command", "")
	v.SetDefault("remote.import_command", "")
	v.SetDefault("remote.command_timeout_secs", 300)
	v.SetDefault("local.raw_dir", "./data/raw")
	v.SetDefault("local.extract_dir", "./data/extract")
	v.SetDefault("local.staging_dir", "./data/clean")
	v.SetDefault("staging.lookback_days", 3)
	v.SetDefault("staging.delete_policy", "all")
	v.SetDefault("staging.create_dir", true)
	v.SetDefault("staging.reupload_existing", false)
	v.SetDefault("validate.policy", "block")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Transport != "sftp" && cfg.Transport != "ftp" {
		return nil, eris.Errorf("config: unknown transport %q (valid: sftp, ftp)", cfg.Transport)
	}
	if cfg.Staging.DeletePolicy != "all" && cfg.Staging.DeletePolicy != "prefix" {
		return nil, eris.Errorf("config: unknown delete_policy %q (valid: all, prefix)", cfg.Staging.DeletePolicy)
	}
	if cfg.Validate.Policy != "block" && cfg.Validate.Policy != "warn" {
		return nil, eris.Errorf("config: unknown validate policy %q (valid: block, warn)", cfg.Validate.Policy)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
