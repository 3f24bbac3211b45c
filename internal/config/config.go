// Package config provides the configuration schema and loader for the
// heckler server and its admin tooling.
package config

// LogLevel controls log verbosity for the heckler server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for heckler.
// It is typically loaded from a TOML file using [Load] or [LoadFromReader].
type Config struct {
	// DataDirectory is where clip audio, cue files, and any local state
	// live. Clip files are stored under "<data_directory>/clips/".
	DataDirectory string `toml:"data_directory"`

	// DatabaseURL is the PostgreSQL connection URL for the clip store.
	DatabaseURL string `toml:"database_url"`

	// DiscordToken authenticates the bot with the Discord gateway.
	DiscordToken string `toml:"discord_token"`

	// GuildID is the Discord guild (server) the bot operates in.
	GuildID string `toml:"guild_id"`

	// ChannelID is the voice channel the bot joins and listens to.
	ChannelID string `toml:"channel_id"`

	// LogChannelID is an optional text channel where play decisions are
	// reported. Empty disables reporting.
	LogChannelID string `toml:"log_channel_id"`

	// RateAdjuster is the time constant, in seconds, of the exponential
	// play-probability curve. Larger values make the bot calmer.
	RateAdjuster float64 `toml:"rate_adjuster"`

	// RandomClipInterval is how often, in seconds, the bot plays a
	// random clip while connected to a voice channel.
	RandomClipInterval uint64 `toml:"random_clip_interval"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `toml:"log_level"`

	// HTTPAPI configures the admin HTTP server.
	HTTPAPI HTTPAPIConfig `toml:"http_api"`

	// Whisper configures the speech-to-text backend.
	Whisper WhisperConfig `toml:"whisper"`
}

// HTTPAPIConfig holds the admin HTTP server settings.
type HTTPAPIConfig struct {
	// URL is the address the server binds to, e.g. "http://127.0.0.1:8080".
	URL string `toml:"url"`

	// User and Password form the single HTTP Basic credential pair
	// required on every route except the status endpoint.
	User     string `toml:"user"`
	Password string `toml:"password"`

	// TLSCertificate and TLSKey are paths to a PEM certificate and key.
	// Both must be set to serve HTTPS, or both left empty for HTTP.
	TLSCertificate string `toml:"tls_certificate"`
	TLSKey         string `toml:"tls_key"`
}

// WhisperConfig selects and configures the speech-to-text backend.
// Exactly one of Model or URL must be set.
type WhisperConfig struct {
	// Model is the path to a local whisper.cpp model file.
	Model string `toml:"model"`

	// URL points at a remote whisper.cpp server; when set, transcription
	// requests are POSTed to "<url>/inference" instead of running a
	// local model.
	URL string `toml:"url"`
}

// Default returns a Config populated with the documented defaults.
// Loaders decode on top of it so absent keys keep their default value.
func Default() *Config {
	return &Config{
		DatabaseURL:        "postgres:///heckler",
		RateAdjuster:       256,
		RandomClipInterval: 900,
		LogLevel:           LogInfo,
		HTTPAPI: HTTPAPIConfig{
			URL: "http://127.0.0.1:8080",
		},
	}
}
