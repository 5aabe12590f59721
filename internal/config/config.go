// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the clipscribe server.
package config

// LogLevel controls log verbosity for the clipscribe server.
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

// StoreBackend selects the transcript persistence backend.
type StoreBackend string

const (
	// StoreSQLite keeps transcripts in a local SQLite file.
	StoreSQLite StoreBackend = "sqlite"

	// StorePostgres keeps transcripts in a shared PostgreSQL database.
	StorePostgres StoreBackend = "postgres"

	// StoreNone disables persistence; every upload is transcribed fresh.
	StoreNone StoreBackend = "none"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreSQLite, StorePostgres, StoreNone:
		return true
	}
	return false
}

// Config is the root configuration structure for clipscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Store     StoreConfig     `yaml:"store"`
	Media     MediaConfig     `yaml:"media"`
	Playback  PlaybackConfig  `yaml:"playback"`
}

// ServerConfig holds network and logging settings for the server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// ASR is the speech recognition backend producing word timestamps.
	ASR ProviderEntry `yaml:"asr"`

	// LLM is the language model backend driving transcript optimization.
	// Leave the name empty to disable the /optimize endpoint.
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper-native", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "/models/ggml-base.bin").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// StoreConfig selects and configures transcript persistence.
type StoreConfig struct {
	// Backend selects the persistence implementation. Empty defaults to
	// "sqlite".
	Backend StoreBackend `yaml:"backend"`

	// DSN is the backend connection string: a file path for sqlite
	// (default "file:./clipscribe.db"), a postgres:// URL for postgres.
	DSN string `yaml:"dsn"`
}

// MediaConfig holds settings for upload handling and audio normalization.
type MediaConfig struct {
	// TmpDir is where uploads and extracted audio are staged. Empty means
	// the system temp directory.
	TmpDir string `yaml:"tmp_dir"`

	// MaxUploadMB caps the accepted upload size in megabytes. Zero means
	// 512.
	MaxUploadMB int `yaml:"max_upload_mb"`

	// PauseThresholdSec is the minimum inter-segment silence, in seconds,
	// rendered as a gap entry in the transcript. Zero means 0.2.
	PauseThresholdSec float64 `yaml:"pause_threshold_sec"`
}

// EffectiveMaxUploadMB returns MaxUploadMB with the zero default applied.
func (m MediaConfig) EffectiveMaxUploadMB() int {
	if m.MaxUploadMB == 0 {
		return 512
	}
	return m.MaxUploadMB
}

// EffectivePauseThreshold returns PauseThresholdSec with the zero default
// applied.
func (m MediaConfig) EffectivePauseThreshold() float64 {
	if m.PauseThresholdSec == 0 {
		return 0.2
	}
	return m.PauseThresholdSec
}

// PlaybackConfig tunes the click-to-seek interaction.
type PlaybackConfig struct {
	// ResumeDelayMs is how long playback stays paused after a word click
	// before resuming. Zero means 100.
	ResumeDelayMs int `yaml:"resume_delay_ms"`

	// PauseOnly disables the automatic resume after word clicks.
	PauseOnly bool `yaml:"pause_only"`
}

// EffectiveResumeDelayMs returns ResumeDelayMs with the zero default applied.
func (p PlaybackConfig) EffectiveResumeDelayMs() int {
	if p.ResumeDelayMs == 0 {
		return 100
	}
	return p.ResumeDelayMs
}
