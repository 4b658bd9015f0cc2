package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quizmic/internal/audio"
)

const (
	ProviderQuizAPI  = "quizapi"
	ProviderDeepgram = "deepgram"
)

// Config stores runtime configuration. Values come from defaults, then an
// optional YAML file named by QUIZMIC_CONFIG_FILE, then the environment.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Audio       AudioConfig       `yaml:"audio"`
	Spectrum    SpectrumConfig    `yaml:"spectrum"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL          string        `yaml:"base_url"`
	MediaBaseURL     string        `yaml:"media_base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	UploadRecordings bool          `yaml:"upload_recordings"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkSize       int    `yaml:"chunk_size"`
	CaptureFormat   string `yaml:"capture_format"`
}

type SpectrumConfig struct {
	WindowSize int           `yaml:"window_size"`
	Interval   time.Duration `yaml:"interval"`
}

type TranscriberConfig struct {
	Provider string         `yaml:"provider"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base_url"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	SmartFormat bool   `yaml:"smart_format"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Bind string `yaml:"bind"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	inputFormat, inputDevice := defaultInput(runtime.GOOS)
	return Config{
		API: APIConfig{
			BaseURL:          "http://localhost:5000/api",
			Timeout:          30 * time.Second,
			UploadRecordings: true,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     inputFormat,
			InputDevice:     inputDevice,
			SampleRate:      16000,
			Channels:        1,
			ChunkSize:       4096,
			CaptureFormat:   string(audio.FormatWAV),
		},
		Spectrum: SpectrumConfig{
			WindowSize: 2048,
			Interval:   16 * time.Millisecond,
		},
		Transcriber: TranscriberConfig{
			Provider: ProviderQuizAPI,
			Deepgram: DeepgramConfig{
				APIBaseURL:  "https://api.deepgram.com/v1",
				Model:       "nova-2",
				SmartFormat: true,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves configuration from the optional config file and the
// environment.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("QUIZMIC_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = envOrDefault("QUIZMIC_API_BASE", cfg.API.BaseURL)
	cfg.API.MediaBaseURL = envOrDefault("QUIZMIC_MEDIA_BASE", cfg.API.MediaBaseURL)
	cfg.API.Timeout = envOrDefaultDuration("QUIZMIC_API_TIMEOUT", cfg.API.Timeout)
	cfg.API.UploadRecordings = envOrDefaultBool("QUIZMIC_UPLOAD_RECORDINGS", cfg.API.UploadRecordings)

	cfg.Audio.RecorderCommand = envOrDefault("QUIZMIC_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("QUIZMIC_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("QUIZMIC_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("QUIZMIC_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("QUIZMIC_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkSize = envOrDefaultInt("QUIZMIC_AUDIO_CHUNK_SIZE", cfg.Audio.ChunkSize)
	cfg.Audio.CaptureFormat = envOrDefault("QUIZMIC_CAPTURE_FORMAT", cfg.Audio.CaptureFormat)

	cfg.Spectrum.WindowSize = envOrDefaultInt("QUIZMIC_SPECTRUM_WINDOW", cfg.Spectrum.WindowSize)
	cfg.Spectrum.Interval = envOrDefaultDuration("QUIZMIC_SPECTRUM_INTERVAL", cfg.Spectrum.Interval)

	cfg.Transcriber.Provider = strings.ToLower(envOrDefault("QUIZMIC_TRANSCRIBER", cfg.Transcriber.Provider))
	cfg.Transcriber.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Transcriber.Deepgram.APIKey)
	cfg.Transcriber.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Transcriber.Deepgram.APIBaseURL)
	cfg.Transcriber.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Transcriber.Deepgram.Model)
	cfg.Transcriber.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Transcriber.Deepgram.Language)
	cfg.Transcriber.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Transcriber.Deepgram.SmartFormat)

	cfg.Log.Level = strings.ToLower(envOrDefault("QUIZMIC_LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(envOrDefault("QUIZMIC_LOG_FORMAT", cfg.Log.Format))

	cfg.Metrics.Bind = envOrDefault("QUIZMIC_METRICS_BIND", cfg.Metrics.Bind)
}

func normalize(cfg *Config) {
	def := Defaults()
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = def.API.Timeout
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = def.Audio.Channels
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = def.Audio.ChunkSize
	}
	if cfg.Spectrum.WindowSize <= 0 {
		cfg.Spectrum.WindowSize = def.Spectrum.WindowSize
	}
	if cfg.Spectrum.Interval <= 0 {
		cfg.Spectrum.Interval = def.Spectrum.Interval
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api base URL is required"))
	}
	if _, err := audio.ParseFormat(c.Audio.CaptureFormat); err != nil {
		errs = append(errs, err)
	}
	if c.Spectrum.WindowSize < 32 || c.Spectrum.WindowSize&(c.Spectrum.WindowSize-1) != 0 {
		errs = append(errs, fmt.Errorf("spectrum window size %d must be a power of two >= 32", c.Spectrum.WindowSize))
	}
	switch c.Transcriber.Provider {
	case ProviderQuizAPI:
	case ProviderDeepgram:
		if strings.TrimSpace(c.Transcriber.Deepgram.APIKey) == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY is required for the deepgram transcriber"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transcriber %q", c.Transcriber.Provider))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func defaultInput(goos string) (format string, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultDuration accepts Go durations ("250ms") or bare milliseconds.
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
