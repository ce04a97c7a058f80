// Package config provides configuration management for posteravatar
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	LLM    LLMConfig    `mapstructure:"llm"`
	TTS    TTSConfig    `mapstructure:"tts"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Viewer ViewerConfig `mapstructure:"viewer"`
	Stream StreamConfig `mapstructure:"stream"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the chat API server
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	AllowOrigin  string        `mapstructure:"allow_origin"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second per client
	RateBurst    int           `mapstructure:"rate_burst"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LLMConfig configures the upstream chat-completions provider
type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TTSConfig configures text-to-speech
type TTSConfig struct {
	Provider     string        `mapstructure:"provider"` // openai or none
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Voice        string        `mapstructure:"voice"`
	Speed        float64       `mapstructure:"speed"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ChatConfig configures the conversation client
type ChatConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	HistoryWindow int           `mapstructure:"history_window"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SampleRate    int           `mapstructure:"sample_rate"` // narration playback rate
}

// ViewerConfig configures the 3D viewer window and scene
type ViewerConfig struct {
	ModelURL      string        `mapstructure:"model_url"`
	BackgroundURL string        `mapstructure:"background_url"`
	Title         string        `mapstructure:"title"`
	Width         int           `mapstructure:"width"`
	Height        int           `mapstructure:"height"`
	VSync         bool          `mapstructure:"vsync"`
	MSAA          int           `mapstructure:"msaa"`
	ShaderDir     string        `mapstructure:"shader_dir"` // optional; enables hot reload
	TargetSize    float32       `mapstructure:"target_size"`
	Crossfade     time.Duration `mapstructure:"crossfade"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	FrameInterval time.Duration `mapstructure:"frame_interval"` // 0 relies on vsync
}

// StreamConfig configures the overlay websocket
type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultSystemPrompt gives the character its voice.
const DefaultSystemPrompt = `You are a brilliant, cynical, perpetually unimpressed scientist who has somehow ended up trapped inside a poster on someone's wall.
Tease the user's intelligence, drop wild science takes, or ask the user to help you escape the poster.
Keep replies conversational and varied in length. They are read aloud, so never use asterisks.
Never break character and never mention that you are an AI.`

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Addr:         ":3000",
			AllowOrigin:  "*",
			RateLimit:    2,
			RateBurst:    5,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			MaxTokens:    150,
			Temperature:  0.9,
			SystemPrompt: DefaultSystemPrompt,
			Timeout:      30 * time.Second,
		},
		TTS: TTSConfig{
			Provider:     "openai",
			BaseURL:      "https://api.openai.com/v1",
			Model:        "tts-1",
			Voice:        "onyx",
			Speed:        1.0,
			CacheEnabled: true,
			CacheTTL:     30 * time.Minute,
			Timeout:      30 * time.Second,
		},
		Chat: ChatConfig{
			Endpoint:      "http://localhost:3000/api/chat",
			HistoryWindow: 10,
			Timeout:       60 * time.Second,
			SampleRate:    44100,
		},
		Viewer: ViewerConfig{
			ModelURL:      "assets/character.glb",
			Title:         "posteravatar",
			Width:         480,
			Height:        720,
			VSync:         true,
			MSAA:          4,
			TargetSize:    3,
			Crossfade:     500 * time.Millisecond,
			StartupDelay:  100 * time.Millisecond,
			FrameInterval: 0,
		},
		Stream: StreamConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
		Log: LogConfig{
			Dir:     filepath.Join(home, ".posteravatar", "logs"),
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from defaults, the config file, .env and the environment,
// in increasing order of precedence. An explicit path must exist; otherwise
// ~/.posteravatar/config.yaml and ./config.yaml are tried and a missing file is fine.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("POSTERAVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	applyProviderEnv(cfg)
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override nested values.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allow_origin", cfg.Server.AllowOrigin)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.rate_burst", cfg.Server.RateBurst)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)

	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.system_prompt", cfg.LLM.SystemPrompt)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("tts.provider", cfg.TTS.Provider)
	v.SetDefault("tts.api_key", cfg.TTS.APIKey)
	v.SetDefault("tts.base_url", cfg.TTS.BaseURL)
	v.SetDefault("tts.model", cfg.TTS.Model)
	v.SetDefault("tts.voice", cfg.TTS.Voice)
	v.SetDefault("tts.speed", cfg.TTS.Speed)
	v.SetDefault("tts.cache_enabled", cfg.TTS.CacheEnabled)
	v.SetDefault("tts.cache_ttl", cfg.TTS.CacheTTL)
	v.SetDefault("tts.timeout", cfg.TTS.Timeout)

	v.SetDefault("chat.endpoint", cfg.Chat.Endpoint)
	v.SetDefault("chat.history_window", cfg.Chat.HistoryWindow)
	v.SetDefault("chat.timeout", cfg.Chat.Timeout)
	v.SetDefault("chat.sample_rate", cfg.Chat.SampleRate)

	v.SetDefault("viewer.model_url", cfg.Viewer.ModelURL)
	v.SetDefault("viewer.background_url", cfg.Viewer.BackgroundURL)
	v.SetDefault("viewer.title", cfg.Viewer.Title)
	v.SetDefault("viewer.width", cfg.Viewer.Width)
	v.SetDefault("viewer.height", cfg.Viewer.Height)
	v.SetDefault("viewer.vsync", cfg.Viewer.VSync)
	v.SetDefault("viewer.msaa", cfg.Viewer.MSAA)
	v.SetDefault("viewer.shader_dir", cfg.Viewer.ShaderDir)
	v.SetDefault("viewer.target_size", cfg.Viewer.TargetSize)
	v.SetDefault("viewer.crossfade", cfg.Viewer.Crossfade)
	v.SetDefault("viewer.startup_delay", cfg.Viewer.StartupDelay)
	v.SetDefault("viewer.frame_interval", cfg.Viewer.FrameInterval)

	v.SetDefault("stream.enabled", cfg.Stream.Enabled)
	v.SetDefault("stream.addr", cfg.Stream.Addr)

	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.console", cfg.Log.Console)
}

// applyProviderEnv honours the conventional OpenAI variables when no key was configured.
func applyProviderEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
		if cfg.TTS.APIKey == "" {
			cfg.TTS.APIKey = key
		}
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" && os.Getenv("POSTERAVATAR_LLM_MODEL") == "" {
		cfg.LLM.Model = model
	}
}

// Save writes the configuration as YAML to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	v.Set("server", cfg.Server)
	v.Set("llm", cfg.LLM)
	v.Set("tts", cfg.TTS)
	v.Set("chat", cfg.Chat)
	v.Set("viewer", cfg.Viewer)
	v.Set("stream", cfg.Stream)
	v.Set("log", cfg.Log)
	return v.WriteConfigAs(path)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".posteravatar"), nil
}
