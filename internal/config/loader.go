package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads the TOML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a TOML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	meta, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q", undecoded[0].String())
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.DataDirectory == "" {
		errs = append(errs, errors.New("data_directory must be set"))
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url must be set"))
	}
	if cfg.DiscordToken == "" {
		errs = append(errs, errors.New("discord_token must be set"))
	}
	if cfg.GuildID == "" {
		errs = append(errs, errors.New("guild_id must be set"))
	}
	if cfg.ChannelID == "" {
		errs = append(errs, errors.New("channel_id must be set"))
	}
	if cfg.RateAdjuster <= 0 {
		errs = append(errs, fmt.Errorf("rate_adjuster must be positive, got %v", cfg.RateAdjuster))
	}
	if cfg.RandomClipInterval == 0 {
		errs = append(errs, errors.New("random_clip_interval must be positive"))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.HTTPAPI.URL == "" {
		errs = append(errs, errors.New("http_api.url must be set"))
	} else if _, err := url.Parse(cfg.HTTPAPI.URL); err != nil {
		errs = append(errs, fmt.Errorf("http_api.url %q is invalid: %v", cfg.HTTPAPI.URL, err))
	}
	if cfg.HTTPAPI.User == "" || cfg.HTTPAPI.Password == "" {
		errs = append(errs, errors.New("http_api.user and http_api.password must both be set"))
	}
	if (cfg.HTTPAPI.TLSCertificate == "") != (cfg.HTTPAPI.TLSKey == "") {
		errs = append(errs, errors.New("http_api.tls_certificate and http_api.tls_key must be set together or not at all"))
	}

	switch {
	case cfg.Whisper.Model == "" && cfg.Whisper.URL == "":
		errs = append(errs, errors.New("whisper.model or whisper.url must be set"))
	case cfg.Whisper.Model != "" && cfg.Whisper.URL != "":
		errs = append(errs, errors.New("whisper.model and whisper.url are mutually exclusive"))
	}

	return errors.Join(errs...)
}
