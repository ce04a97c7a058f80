// Package audio loads and plays narration clips for the avatar.
package audio

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrEmptySource   = errors.New("empty audio source")
	ErrClosed        = errors.New("narration closed")
)

// AudioFormat represents audio encoding format
type AudioFormat string

const (
	FormatWAV     AudioFormat = "wav"
	FormatMP3     AudioFormat = "mp3"
	FormatUnknown AudioFormat = ""
)

// DefaultSampleRate is the output rate of the playback context.
const DefaultSampleRate = 44100

// Narration is one loaded speech clip.
type Narration interface {
	// Play starts the clip from the beginning. onEnd runs once when playback reaches
	// the end; it does not run after Pause or Close.
	Play(onEnd func()) error
	Pause()
	Close() error
}

// Loader turns an audio URL (data URI, file path or HTTP URL) into a Narration.
type Loader interface {
	Load(ctx context.Context, url string) (Narration, error)
}
