package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Synth   SynthConfig   `mapstructure:"synth" yaml:"synth"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Roll    RollConfig    `mapstructure:"roll" yaml:"roll"`
}

type AudioConfig struct {
	SampleRate     int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	CaptureBackend string `mapstructure:"capture_backend" yaml:"capture_backend"` // "loopback", "exec", "auto"
	FFmpegBinary   string `mapstructure:"ffmpeg_binary" yaml:"ffmpeg_binary"`
	CaptureDevice  string `mapstructure:"capture_device" yaml:"capture_device"`
}

type SynthConfig struct {
	Waveform  string  `mapstructure:"waveform" yaml:"waveform"` // "sine", "square", "saw", "triangle"
	VolumeDB  float64 `mapstructure:"volume_db" yaml:"volume_db"`
	ReleaseMs int     `mapstructure:"release_ms" yaml:"release_ms"`
	Octave    int     `mapstructure:"octave" yaml:"octave"`
}

type APIConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	Token          string `mapstructure:"token" yaml:"token"`
	UserID         string `mapstructure:"user_id" yaml:"user_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"` // "local", "s3"
	Directory     string `mapstructure:"directory" yaml:"directory"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	Region        string `mapstructure:"region" yaml:"region"`
	URLTTLMinutes int    `mapstructure:"url_ttl_minutes" yaml:"url_ttl_minutes"`
}

type RollConfig struct {
	BPM     int `mapstructure:"bpm" yaml:"bpm"`
	Columns int `mapstructure:"columns" yaml:"columns"`
}

func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:     44100,
			CaptureBackend: "auto",
			FFmpegBinary:   "ffmpeg",
			CaptureDevice:  "default",
		},
		Synth: SynthConfig{
			Waveform:  "sine",
			VolumeDB:  -10,
			ReleaseMs: 1000,
			Octave:    4,
		},
		API: APIConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 15,
		},
		Storage: StorageConfig{
			Backend:       "local",
			Directory:     filepath.Join(os.Getenv("HOME"), "Audio", "HarmonIA"),
			URLTTLMinutes: 60,
		},
		Roll: RollConfig{
			BPM:     120,
			Columns: 100,
		},
	}
}

// Load reads configuration from the given YAML file. A missing file yields
// the defaults; a malformed file is an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = os.ExpandEnv("$HOME/.config/harmonia.yaml")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("audio.sample_rate", cfg.Audio.SampleRate)
	v.SetDefault("audio.capture_backend", cfg.Audio.CaptureBackend)
	v.SetDefault("audio.ffmpeg_binary", cfg.Audio.FFmpegBinary)
	v.SetDefault("audio.capture_device", cfg.Audio.CaptureDevice)
	v.SetDefault("synth.waveform", cfg.Synth.Waveform)
	v.SetDefault("synth.volume_db", cfg.Synth.VolumeDB)
	v.SetDefault("synth.release_ms", cfg.Synth.ReleaseMs)
	v.SetDefault("synth.octave", cfg.Synth.Octave)
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.user_id", cfg.API.UserID)
	v.SetDefault("api.timeout_seconds", cfg.API.TimeoutSeconds)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.directory", cfg.Storage.Directory)
	v.SetDefault("storage.bucket", cfg.Storage.Bucket)
	v.SetDefault("storage.region", cfg.Storage.Region)
	v.SetDefault("storage.url_ttl_minutes", cfg.Storage.URLTTLMinutes)
	v.SetDefault("roll.bpm", cfg.Roll.BPM)
	v.SetDefault("roll.columns", cfg.Roll.Columns)
}

func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	switch strings.ToLower(c.Audio.CaptureBackend) {
	case "", "auto", "loopback", "exec":
	default:
		return fmt.Errorf("audio.capture_backend must be one of auto, loopback, exec, got %q", c.Audio.CaptureBackend)
	}
	switch strings.ToLower(c.Synth.Waveform) {
	case "", "sine", "square", "saw", "triangle":
	default:
		return fmt.Errorf("synth.waveform must be one of sine, square, saw, triangle, got %q", c.Synth.Waveform)
	}
	if c.Synth.Octave < 0 || c.Synth.Octave > 8 {
		return fmt.Errorf("synth.octave must be within [0,8], got %d", c.Synth.Octave)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "", "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
		if c.Storage.Region == "" {
			return fmt.Errorf("storage.region is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}
	if c.Roll.BPM <= 0 {
		return fmt.Errorf("roll.bpm must be positive, got %d", c.Roll.BPM)
	}
	if c.Roll.Columns <= 0 {
		return fmt.Errorf("roll.columns must be positive, got %d", c.Roll.Columns)
	}
	return nil
}
