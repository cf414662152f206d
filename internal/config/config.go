// Package config provides configuration management for vidflow using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vidflow/vidflow/internal/effects"
	"github.com/vidflow/vidflow/internal/sink"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxWorkers      = 4
	defaultFrameWidth      = 1280
	defaultFrameHeight     = 720
	defaultFrameRate       = 30
	defaultBitrate         = 2_000_000
	defaultHLSSegmentSecs  = 6
	defaultDASHSegmentSecs = 4
	defaultStopGrace       = 5 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Streaming  StreamingConfig  `mapstructure:"streaming"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// StorageConfig holds output storage configuration.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ProcessingConfig holds the frame pipeline configuration.
type ProcessingConfig struct {
	GPUEnabled    bool           `mapstructure:"gpu_enabled"`
	MaxWorkers    int            `mapstructure:"max_workers"`
	OutputFormats []string       `mapstructure:"output_formats"`
	FrameWidth    int            `mapstructure:"frame_width"`
	FrameHeight   int            `mapstructure:"frame_height"`
	FrameRate     int            `mapstructure:"frame_rate"`
	Effects       effects.Config `mapstructure:"effects"`
}

// StreamingConfig holds segmented output encoding configuration.
type StreamingConfig struct {
	Bitrate             int           `mapstructure:"bitrate"`
	HLSSegmentDuration  int           `mapstructure:"hls_segment_duration"`
	DASHSegmentDuration int           `mapstructure:"dash_segment_duration"`
	StopGrace           time.Duration `mapstructure:"stop_grace"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // empty = search PATH
}

// CleanupConfig holds the orphaned output directory cleanup schedule.
type CleanupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // 6-field cron expression
}

// Load reads configuration into v from file and environment variables and
// unmarshals the result. Anything already bound on v, such as command line
// flags, keeps its usual viper precedence above both. Environment variables
// are prefixed with VIDFLOW_ and use underscores for nesting.
// Example: VIDFLOW_SERVER_PORT=8080.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vidflow")
		v.AddConfigPath("$HOME/.vidflow")
	}

	v.SetEnvPrefix("VIDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Storage defaults
	v.SetDefault("storage.output_dir", "output")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Processing defaults
	v.SetDefault("processing.gpu_enabled", false)
	v.SetDefault("processing.max_workers", defaultMaxWorkers)
	v.SetDefault("processing.output_formats", []string{"lowlatency", "hls", "dash"})
	v.SetDefault("processing.frame_width", defaultFrameWidth)
	v.SetDefault("processing.frame_height", defaultFrameHeight)
	v.SetDefault("processing.frame_rate", defaultFrameRate)
	v.SetDefault("processing.effects.blur.enabled", false)
	v.SetDefault("processing.effects.blur.kernel_size", 15)
	v.SetDefault("processing.effects.edge_detection.enabled", false)
	v.SetDefault("processing.effects.edge_detection.threshold1", 100)
	v.SetDefault("processing.effects.edge_detection.threshold2", 200)
	v.SetDefault("processing.effects.color_filter.enabled", false)
	v.SetDefault("processing.effects.color_filter.hue_shift", 0)
	v.SetDefault("processing.effects.ml_enhancement.enabled", false)
	v.SetDefault("processing.effects.ml_enhancement.model", "esrgan")

	// Streaming defaults
	v.SetDefault("streaming.bitrate", defaultBitrate)
	v.SetDefault("streaming.hls_segment_duration", defaultHLSSegmentSecs)
	v.SetDefault("streaming.dash_segment_duration", defaultDASHSegmentSecs)
	v.SetDefault("streaming.stop_grace", defaultStopGrace)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")

	// Cleanup defaults
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.cron", "0 0 * * * *") // hourly
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	if c.Processing.MaxWorkers < 1 {
		return fmt.Errorf("processing.max_workers must be at least 1")
	}
	if len(c.Processing.OutputFormats) == 0 {
		return fmt.Errorf("processing.output_formats must not be empty")
	}
	for _, format := range c.Processing.OutputFormats {
		if _, err := sink.ParseKind(format); err != nil {
			return fmt.Errorf("processing.output_formats: %w", err)
		}
	}
	if c.Processing.FrameWidth < 1 || c.Processing.FrameHeight < 1 {
		return fmt.Errorf("processing.frame_width and frame_height must be positive")
	}
	if c.Processing.FrameRate < 1 {
		return fmt.Errorf("processing.frame_rate must be at least 1")
	}
	if ks := c.Processing.Effects.Blur.KernelSize; ks < 1 || ks%2 == 0 {
		return fmt.Errorf("processing.effects.blur.kernel_size must be a positive odd number")
	}

	if c.Streaming.Bitrate < 1 {
		return fmt.Errorf("streaming.bitrate must be positive")
	}
	if c.Streaming.HLSSegmentDuration < 1 || c.Streaming.DASHSegmentDuration < 1 {
		return fmt.Errorf("streaming segment durations must be at least 1 second")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OutputKinds returns the configured output formats as sink kinds. Call
// Validate first; unknown formats are skipped here.
func (c *ProcessingConfig) OutputKinds() []sink.Kind {
	kinds := make([]sink.Kind, 0, len(c.OutputFormats))
	for _, format := range c.OutputFormats {
		if k, err := sink.ParseKind(format); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
