// CLAUDE:SUMMARY Service configuration: YAML file merged with env overrides.
// Package config loads the dutyrec service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	DBPath      string `yaml:"db_path"`
	SessionsDir string `yaml:"sessions_dir"`
	DataDir     string `yaml:"data_dir"`

	// Passphrase seals broker credentials at rest. Empty disables
	// sealing; prefer DUTYREC_PASSPHRASE over the file.
	Passphrase string `yaml:"passphrase"`

	Portal  PortalConfig  `yaml:"portal"`
	Storage StorageConfig `yaml:"storage"`
	PDF     PDFConfig     `yaml:"pdf"`
}

// PortalConfig configures the portal adapter.
type PortalConfig struct {
	BaseURL      string `yaml:"base_url"`
	UserAgent    string `yaml:"user_agent"`
	ProbeTimeout int    `yaml:"probe_timeout_seconds"`
	LoginTimeout int    `yaml:"login_timeout_seconds"`
}

// StorageConfig configures the artifact bucket.
type StorageConfig struct {
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	Prefix     string `yaml:"prefix"`
	PresignTTL int    `yaml:"presign_ttl_seconds"`
}

// PDFConfig configures 7501 post-processing.
type PDFConfig struct {
	GSBinary string `yaml:"gs_binary"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8090",
		DBPath:      "dutyrec.db",
		SessionsDir: "sessions",
		DataDir:     "data",
		Storage: StorageConfig{
			Prefix:     "netchb-duty",
			PresignTTL: 3600,
		},
		PDF: PDFConfig{GSBinary: "gs"},
	}
}

// Load reads the YAML file, merges it over defaults, and applies env
// overrides. An empty path skips the file and uses defaults plus env.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv lets deployment env vars override the file. Secrets are
// expected to arrive this way rather than on disk.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Listen, "DUTYREC_LISTEN")
	set(&c.DBPath, "DUTYREC_DB_PATH")
	set(&c.SessionsDir, "DUTYREC_SESSIONS_DIR")
	set(&c.Passphrase, "DUTYREC_PASSPHRASE")
	set(&c.Portal.BaseURL, "DUTYREC_PORTAL_URL")
	set(&c.Storage.Bucket, "DUTYREC_STORAGE_BUCKET")
	set(&c.Storage.Region, "DUTYREC_STORAGE_REGION")
	set(&c.Storage.Endpoint, "DUTYREC_STORAGE_ENDPOINT")
	set(&c.Storage.Prefix, "NETCHB_DUTY_STORAGE_PREFIX")
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.SessionsDir == "" {
		return fmt.Errorf("config: sessions_dir is required")
	}
	if c.Storage.PresignTTL < 0 {
		return fmt.Errorf("config: presign_ttl_seconds must be >= 0")
	}
	return nil
}

// PresignTTL returns the presigned-URL lifetime as a duration.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.Storage.PresignTTL) * time.Second
}
