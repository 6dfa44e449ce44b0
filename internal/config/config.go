package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultPath = "./config.yaml"
	EnvPrefix   = "KITSU2SONARR"

	OnCorruptAbort = "abort"
	OnCorruptReset = "reset"
)

var ErrConfigIncomplete = errors.New("missing config items")

type KitsuConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	TokenURL         string `mapstructure:"token_url"`
	ClientID         string `mapstructure:"client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	UserID           string `mapstructure:"user_id"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	PageLimit        int    `mapstructure:"page_limit"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	RetryCount       int    `mapstructure:"retry_count"`
	RetryWaitSeconds int    `mapstructure:"retry_wait_seconds"`
}

type SonarrConfig struct {
	BaseURL          string `mapstructure:"baseurl"`
	APIKey           string `mapstructure:"apikey"`
	APIPath          string `mapstructure:"api_path"`
	ProfileID        int    `mapstructure:"profile_id"`
	RootFolder       string `mapstructure:"root_folder"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	RetryCount       int    `mapstructure:"retry_count"`
	RetryWaitSeconds int    `mapstructure:"retry_wait_seconds"`
}

type Config struct {
	DryRun bool         `mapstructure:"dry_run"`
	Kitsu  KitsuConfig  `mapstructure:"kitsu"`
	Sonarr SonarrConfig `mapstructure:"sonarr"`
	Store  struct {
		Path      string `mapstructure:"path"`
		OnCorrupt string `mapstructure:"on_corrupt"`
	} `mapstructure:"store"`
	Schedule struct {
		CronSpec string `mapstructure:"cron_spec"`
	} `mapstructure:"schedule"`

	// File is the config file the values were read from.
	File string `mapstructure:"-"`
}

// requiredKeys are checked in order; the first empty one is reported.
var requiredKeys = []string{
	"kitsu.client_id",
	"kitsu.client_secret",
	"kitsu.user_id",
	"sonarr.baseurl",
	"sonarr.apikey",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dry_run", false)

	v.SetDefault("kitsu.base_url", "https://kitsu.io/api/edge")
	v.SetDefault("kitsu.token_url", "https://kitsu.io/api/oauth/token")
	v.SetDefault("kitsu.page_limit", 20)
	v.SetDefault("kitsu.timeout_seconds", 15)
	v.SetDefault("kitsu.retry_count", 3)
	v.SetDefault("kitsu.retry_wait_seconds", 5)

	v.SetDefault("sonarr.api_path", "/api/v3")
	v.SetDefault("sonarr.profile_id", 0)
	v.SetDefault("sonarr.root_folder", "/anime")
	v.SetDefault("sonarr.timeout_seconds", 15)
	v.SetDefault("sonarr.retry_count", 3)
	v.SetDefault("sonarr.retry_wait_seconds", 5)

	v.SetDefault("store.path", "library.json")
	v.SetDefault("store.on_corrupt", OnCorruptAbort)

	v.SetDefault("schedule.cron_spec", "")
}

// LoadConfig reads path (DefaultPath when empty), applies a sibling .env file
// and KITSU2SONARR_* environment overrides, and validates the result.
// A missing file is replaced by a template with the required keys left blank.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		path = DefaultPath
	}

	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range append(requiredKeys, "kitsu.username", "kitsu.password") {
		_ = v.BindEnv(key)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			if werr := WriteTemplate(path); werr != nil {
				return cfg, fmt.Errorf("config file %s not found and template could not be written: %w", path, werr)
			}
			return cfg, fmt.Errorf("%w: config file %s was created, please fill in %s",
				ErrConfigIncomplete, path, strings.Join(requiredKeys, ", "))
		}
		return cfg, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	values := map[string]string{
		"kitsu.client_id":     c.Kitsu.ClientID,
		"kitsu.client_secret": c.Kitsu.ClientSecret,
		"kitsu.user_id":       c.Kitsu.UserID,
		"sonarr.baseurl":      c.Sonarr.BaseURL,
		"sonarr.apikey":       c.Sonarr.APIKey,
	}
	for _, key := range requiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			return fmt.Errorf("%w: %s is not defined", ErrConfigIncomplete, key)
		}
	}
	if (c.Kitsu.Username == "") != (c.Kitsu.Password == "") {
		return fmt.Errorf("%w: kitsu.username and kitsu.password must be set together", ErrConfigIncomplete)
	}
	switch c.Store.OnCorrupt {
	case OnCorruptAbort, OnCorruptReset:
	default:
		return fmt.Errorf("invalid store.on_corrupt %q (want %q or %q)", c.Store.OnCorrupt, OnCorruptAbort, OnCorruptReset)
	}
	return nil
}

// WriteTemplate creates a config file containing the required keys with empty values.
func WriteTemplate(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	t := viper.New()
	for _, key := range requiredKeys {
		t.Set(key, "")
	}
	t.Set("sonarr.profile_id", 0)
	return t.WriteConfigAs(path)
}

// SaveProfileID persists the chosen Sonarr quality profile into the config file
// without copying environment overrides into it.
func (c *Config) SaveProfileID(id int) error {
	if c.File == "" {
		return errors.New("config was not loaded from a file")
	}
	f := viper.New()
	f.SetConfigFile(c.File)
	if err := f.ReadInConfig(); err != nil {
		return fmt.Errorf("re-reading %s: %w", c.File, err)
	}
	f.Set("sonarr.profile_id", id)
	if err := f.WriteConfig(); err != nil {
		return fmt.Errorf("writing %s: %w", c.File, err)
	}
	c.Sonarr.ProfileID = id
	return nil
}
