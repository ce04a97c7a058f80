package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/config"
)

// OpenAI TTS voices
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx" // Male, deep
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// maxInputLength is the speech endpoint's input limit.
const maxInputLength = 4096

// OpenAIProvider implements TTS using OpenAI's speech API
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
	model   string
	voice   string
	speed   float64
}

// NewOpenAIProvider creates a provider from the tts config section.
func NewOpenAIProvider(cfg config.TTSConfig, logger zerolog.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("provider", "openai-tts").Logger(),
		model:   cfg.Model,
		voice:   cfg.Voice,
		speed:   cfg.Speed,
	}
	if p.baseURL == "" {
		p.baseURL = "https://api.openai.com/v1"
	}
	if p.model == "" {
		p.model = "tts-1"
	}
	if p.voice == "" {
		p.voice = VoiceOnyx
	}
	if p.speed == 0 {
		p.speed = 1.0
	}
	return p
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider has an API key configured
func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

type openAITTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to MP3 audio.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if p.apiKey == "" {
		return nil, ErrProviderUnavailable
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if len(req.Text) > maxInputLength {
		return nil, ErrTextTooLong
	}

	startTime := time.Now()

	voice := p.resolveVoice(req.VoiceID)
	speed := req.Speed
	if speed == 0 {
		speed = p.speed
	}

	body, err := json.Marshal(openAITTSRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: "mp3",
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug().
		Str("voice", voice).
		Str("model", p.model).
		Int("textLen", len(req.Text)).
		Msg("Sending TTS request")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		p.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(bodyBytes)).
			Msg("TTS request failed")
		return nil, fmt.Errorf("openai tts error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("openai tts: empty audio")
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("voice", voice).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "mp3",
		SampleRate:     24000,
		ProcessingTime: processingTime,
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}

// resolveVoice keeps known OpenAI voices and falls back to the configured one.
func (p *OpenAIProvider) resolveVoice(voiceID string) string {
	switch voiceID {
	case VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer:
		return voiceID
	}
	return p.voice
}
