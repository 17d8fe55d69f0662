package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr           string
	AllowedOrigins       []string
	TelephonyBaseURL     string
	TelephonyAPIToken    string
	TelephonyMaxPages    int
	PresenceCacheTTL     time.Duration
	STTBaseURL           string
	STTAPIKey            string
	TranscriptionModel   string
	LLMBaseURL           string
	LLMAPIKey            string
	SummaryModel         string
	SummaryMaxTokens     int
	RequestTimeout       time.Duration
	TranscriptionTimeout time.Duration
	SummaryTimeout       time.Duration
	MaxAudioBytes        int64
	LogLevel             string
}

type envConfig struct {
	ListenAddr                  string `env:"LISTEN_ADDR" envDefault:":8080"`
	AllowedOrigins              string `env:"ALLOWED_ORIGINS" envDefault:"*"`
	TelephonyBaseURL            string `env:"TELEPHONY_BASE_URL"`
	TelephonyAPIToken           string `env:"TELEPHONY_API_TOKEN"`
	TelephonyMaxPages           int    `env:"TELEPHONY_MAX_PAGES" envDefault:"50"`
	PresenceCacheTTLMillis      int    `env:"PRESENCE_CACHE_TTL_MS" envDefault:"5000"`
	STTBaseURL                  string `env:"STT_BASE_URL" envDefault:"https://api.openai.com/v1"`
	STTAPIKey                   string `env:"STT_API_KEY"`
	TranscriptionModel          string `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	LLMBaseURL                  string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey                   string `env:"LLM_API_KEY"`
	SummaryModel                string `env:"SUMMARY_MODEL" envDefault:"gpt-4o-mini"`
	SummaryMaxTokens            int    `env:"SUMMARY_MAX_TOKENS" envDefault:"500"`
	RequestTimeoutSeconds       int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"60"`
	TranscriptionTimeoutSeconds int    `env:"TRANSCRIPTION_TIMEOUT_SECONDS" envDefault:"120"`
	SummaryTimeoutSeconds       int    `env:"SUMMARY_TIMEOUT_SECONDS" envDefault:"60"`
	MaxAudioBytes               int64  `env:"MAX_AUDIO_BYTES" envDefault:"26214400"`
	LogLevel                    string `env:"LOG_LEVEL" envDefault:"info"`
}

// MissingCredentialError reports a credential that an endpoint needs but the
// process was started without.
type MissingCredentialError struct {
	Name string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Name)
}

// Load reads an optional .env file from the working directory, then the
// process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:           strings.TrimSpace(raw.ListenAddr),
		AllowedOrigins:       splitList(raw.AllowedOrigins),
		TelephonyBaseURL:     trimBaseURL(raw.TelephonyBaseURL),
		TelephonyAPIToken:    strings.TrimSpace(raw.TelephonyAPIToken),
		TelephonyMaxPages:    raw.TelephonyMaxPages,
		PresenceCacheTTL:     time.Duration(raw.PresenceCacheTTLMillis) * time.Millisecond,
		STTBaseURL:           trimBaseURL(raw.STTBaseURL),
		STTAPIKey:            strings.TrimSpace(raw.STTAPIKey),
		TranscriptionModel:   strings.TrimSpace(raw.TranscriptionModel),
		LLMBaseURL:           trimBaseURL(raw.LLMBaseURL),
		LLMAPIKey:            strings.TrimSpace(raw.LLMAPIKey),
		SummaryModel:         strings.TrimSpace(raw.SummaryModel),
		SummaryMaxTokens:     raw.SummaryMaxTokens,
		RequestTimeout:       time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		TranscriptionTimeout: time.Duration(raw.TranscriptionTimeoutSeconds) * time.Second,
		SummaryTimeout:       time.Duration(raw.SummaryTimeoutSeconds) * time.Second,
		MaxAudioBytes:        raw.MaxAudioBytes,
		LogLevel:             strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must not be empty")
	}
	if c.TelephonyBaseURL == "" {
		return errors.New("TELEPHONY_BASE_URL must not be empty")
	}
	if c.TelephonyMaxPages <= 0 {
		return errors.New("TELEPHONY_MAX_PAGES must be > 0")
	}
	if c.PresenceCacheTTL <= 0 {
		return errors.New("PRESENCE_CACHE_TTL_MS must be > 0")
	}
	if c.STTBaseURL == "" {
		return errors.New("STT_BASE_URL must not be empty")
	}
	if c.LLMBaseURL == "" {
		return errors.New("LLM_BASE_URL must not be empty")
	}
	if c.TranscriptionModel == "" {
		return errors.New("TRANSCRIPTION_MODEL must not be empty")
	}
	if c.SummaryModel == "" {
		return errors.New("SUMMARY_MODEL must not be empty")
	}
	if c.SummaryMaxTokens <= 0 {
		return errors.New("SUMMARY_MAX_TOKENS must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.TranscriptionTimeout <= 0 {
		return errors.New("TRANSCRIPTION_TIMEOUT_SECONDS must be > 0")
	}
	if c.SummaryTimeout <= 0 {
		return errors.New("SUMMARY_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxAudioBytes <= 0 {
		return errors.New("MAX_AUDIO_BYTES must be > 0")
	}
	return nil
}

// RequireTelephony returns a *MissingCredentialError when the telephony token is absent.
func (c Config) RequireTelephony() error {
	if c.TelephonyAPIToken == "" {
		return &MissingCredentialError{Name: "TELEPHONY_API_TOKEN"}
	}
	return nil
}

// RequireDutyQuery checks every credential the duty-query pipeline touches.
func (c Config) RequireDutyQuery() error {
	if err := c.RequireTelephony(); err != nil {
		return err
	}
	if c.STTAPIKey == "" {
		return &MissingCredentialError{Name: "STT_API_KEY"}
	}
	if c.LLMAPIKey == "" {
		return &MissingCredentialError{Name: "LLM_API_KEY"}
	}
	return nil
}

func trimBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func splitList(value string) []string {
	fields := strings.Split(value, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
