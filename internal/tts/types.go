// Package tts turns assistant replies into speech.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyText           = errors.New("nothing to synthesize")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
)

// Synthesizer is implemented by every speech backend.
type Synthesizer interface {
	// Name returns the provider identifier
	Name() string

	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"` // 0.25 to 4.0
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         string        `json:"format"`
	SampleRate     int           `json:"sample_rate"`
	ProcessingTime time.Duration `json:"processing_time"`
	VoiceID        string        `json:"voice_id"`
	Provider       string        `json:"provider"`
	Cached         bool          `json:"cached,omitempty"`
}

// MimeType maps the response format to a MIME type.
func (r *SynthesizeResponse) MimeType() string {
	switch r.Format {
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "audio/mp3"
	}
}

// DataURI encodes the audio as a base64 data URI, e.g. data:audio/mp3;base64,....
func (r *SynthesizeResponse) DataURI() string {
	return "data:" + r.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(r.Audio)
}
