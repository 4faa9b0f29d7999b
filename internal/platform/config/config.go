package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the server settings. Values come from defaults, then an
// optional TOML file, then environment variables, each overriding the last.
type Config struct {
	Port      string `toml:"port"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	FFprobePath string `toml:"ffprobe_path"`
	FFmpegPath  string `toml:"ffmpeg_path"`

	// CDNDir receives playlists and segments. It is also served under /cdn.
	CDNDir string `toml:"cdn_dir"`
	// MediaDir, when set, confines input paths of play requests.
	MediaDir string `toml:"media_dir"`

	SegmentSeconds float64 `toml:"segment_seconds"`

	// OTLPEndpoint enables tracing when set, e.g. "collector:4318" or
	// "https://otel.example.com/v1/traces".
	OTLPEndpoint string `toml:"otlp_endpoint"`
	// TraceSampleRate is the ratio of sampled root spans, 0..1.
	TraceSampleRate float64 `toml:"trace_sample_rate"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:           "8080",
		LogLevel:       "info",
		LogFormat:      "json",
		FFprobePath:    "ffprobe",
		FFmpegPath:     "ffmpeg",
		CDNDir:         "./cdn",
		SegmentSeconds:  10,
		TraceSampleRate: 0.1,
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// LoadFile decodes the TOML file at path over base. Keys missing from the
// file keep their base value.
func LoadFile(path string, base Config) (Config, error) {
	cfg := base
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv overrides fields of base with the environment variables that are
// set.
func FromEnv(base Config) Config {
	cfg := base
	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.FFprobePath = GetEnv("FFPROBE_PATH", cfg.FFprobePath)
	cfg.FFmpegPath = GetEnv("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.CDNDir = GetEnv("CDN_DIR", cfg.CDNDir)
	cfg.MediaDir = GetEnv("MEDIA_DIR", cfg.MediaDir)
	cfg.SegmentSeconds = GetEnvFloat("SEGMENT_SECONDS", cfg.SegmentSeconds)
	cfg.OTLPEndpoint = strings.TrimSpace(GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint))
	cfg.TraceSampleRate = GetEnvFloat("OTEL_TRACE_SAMPLE_RATE", cfg.TraceSampleRate)
	return cfg
}

// Resolve builds the effective Config: defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables.
func Resolve() (Config, error) {
	cfg := Default()
	if path := GetEnv("CONFIG_FILE", ""); path != "" {
		var err error
		if cfg, err = LoadFile(path, cfg); err != nil {
			return Config{}, err
		}
	}
	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if strings.TrimSpace(c.CDNDir) == "" {
		errs = append(errs, errors.New("cdn_dir is required"))
	}
	if !(c.SegmentSeconds > 0) {
		errs = append(errs, fmt.Errorf("segment_seconds must be positive, got %v", c.SegmentSeconds))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 || c.TraceSampleRate != c.TraceSampleRate {
		errs = append(errs, fmt.Errorf("trace_sample_rate must be within [0, 1], got %v", c.TraceSampleRate))
	}
	return errors.Join(errs...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvFloat returns the float value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid number.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}
