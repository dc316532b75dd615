// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env  string   `yaml:"env"`
	Host string   `yaml:"host"`
	Port int      `yaml:"port"`
	TLS  TLS      `yaml:"tls"`
	DB   Database `yaml:"db"`
	CDN  CDN      `yaml:"cdn"`
}

type Database struct {
	Path string `yaml:"path"`
}

type TLS struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// CDN configures the public-facing behavior of the blob store: the base URL
// used to derive descriptor links, the optional allow-lists, and the upload
// size bounds. Empty allow-lists mean unrestricted.
type CDN struct {
	BaseURL              string   `yaml:"baseUrl"`
	WhitelistedPubkeys   []string `yaml:"whitelistedPubkeys"`
	WhitelistedMimeTypes []string `yaml:"whitelistedMimeTypes"`
	MinUploadSizeBytes   int64    `yaml:"minUploadSizeBytes"`
	MaxUploadSizeBytes   int64    `yaml:"maxUploadSizeBytes"`
}

var (
	ErrConfigFileMissing        = errors.New("config file is missing")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrDBPathMissing            = errors.New("db.path is missing in config")
	ErrBaseURLMissing           = errors.New("cdn.baseUrl is missing in config")
	ErrUploadBoundsInvalid      = errors.New("cdn.minUploadSizeBytes must not exceed cdn.maxUploadSizeBytes")
)

// Load reads and validates the configuration at path. Host and port default
// to 0.0.0.0:3000 when unset; a zero size bound means unbounded.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFileMissing, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFileUnmarshallable, err)
	}

	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}

	if cfg.DB.Path == "" {
		return nil, ErrDBPathMissing
	}
	if cfg.CDN.BaseURL == "" {
		return nil, ErrBaseURLMissing
	}
	if cfg.CDN.MaxUploadSizeBytes > 0 && cfg.CDN.MinUploadSizeBytes > cfg.CDN.MaxUploadSizeBytes {
		return nil, ErrUploadBoundsInvalid
	}

	return &cfg, nil
}
