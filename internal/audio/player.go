package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/rs/zerolog"
)

var (
	contextOnce sync.Once
	sharedCtx   *audio.Context
)

// playbackContext returns the process-wide audio context. Ebiten allows only one,
// so the first sample rate wins.
func playbackContext(sampleRate int) *audio.Context {
	contextOnce.Do(func() {
		if c := audio.CurrentContext(); c != nil {
			sharedCtx = c
			return
		}
		sharedCtx = audio.NewContext(sampleRate)
	})
	return sharedCtx
}

// decode turns an encoded source into a PCM stream at sampleRate.
func decode(src Source, sampleRate int) (io.ReadSeeker, int64, error) {
	r := bytes.NewReader(src.Data)
	switch src.Format() {
	case FormatMP3:
		s, err := mp3.DecodeWithSampleRate(sampleRate, r)
		if err != nil {
			return nil, 0, fmt.Errorf("decode mp3: %w", err)
		}
		return s, s.Length(), nil
	case FormatWAV:
		s, err := wav.DecodeWithSampleRate(sampleRate, r)
		if err != nil {
			return nil, 0, fmt.Errorf("decode wav: %w", err)
		}
		return s, s.Length(), nil
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidFormat, src.MimeType)
	}
}

// Player loads narrations and plays them through the shared audio context.
type Player struct {
	sampleRate int
	client     *http.Client
	logger     zerolog.Logger
	poll       time.Duration
}

// NewPlayer creates a player. The audio device is opened on first Load.
func NewPlayer(sampleRate int, client *http.Client, logger zerolog.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Player{
		sampleRate: sampleRate,
		client:     client,
		logger:     logger.With().Str("component", "audio").Logger(),
		poll:       50 * time.Millisecond,
	}
}

var _ Loader = (*Player)(nil)

// Load fetches and decodes url.
func (p *Player) Load(ctx context.Context, url string) (Narration, error) {
	src, err := Fetch(ctx, p.client, url)
	if err != nil {
		return nil, err
	}
	stream, length, err := decode(src, p.sampleRate)
	if err != nil {
		return nil, err
	}

	actx := playbackContext(p.sampleRate)
	ap, err := actx.NewPlayer(stream)
	if err != nil {
		return nil, fmt.Errorf("create audio player: %w", err)
	}

	n := &narration{
		player:   ap,
		poll:     p.poll,
		logger:   p.logger,
		duration: pcmDuration(length, actx.SampleRate()),
	}
	p.logger.Debug().
		Str("format", string(src.Format())).
		Dur("duration", n.duration).
		Msg("narration loaded")
	return n, nil
}

// pcmDuration converts a byte length of 16-bit stereo PCM to time.
func pcmDuration(length int64, sampleRate int) time.Duration {
	if length <= 0 || sampleRate <= 0 {
		return 0
	}
	frames := length / 4
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// playback is the part of *audio.Player a narration drives.
type playback interface {
	Play()
	Pause()
	Rewind() error
	IsPlaying() bool
	Close() error
}

type narration struct {
	player   playback
	poll     time.Duration
	logger   zerolog.Logger
	duration time.Duration

	mu     sync.Mutex
	gen    int
	closed bool
}

// Duration returns the decoded length of the clip.
func (n *narration) Duration() time.Duration {
	return n.duration
}

func (n *narration) Play(onEnd func()) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.gen++
	gen := n.gen
	if err := n.player.Rewind(); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("rewind narration: %w", err)
	}
	n.player.Play()
	n.mu.Unlock()

	go n.watch(gen, onEnd)
	return nil
}

// watch waits for playback to stop and reports the end unless the clip was
// paused, closed or restarted meanwhile.
func (n *narration) watch(gen int, onEnd func()) {
	t := time.NewTicker(n.poll)
	defer t.Stop()
	for range t.C {
		n.mu.Lock()
		if n.gen != gen || n.closed {
			n.mu.Unlock()
			return
		}
		playing := n.player.IsPlaying()
		n.mu.Unlock()

		if !playing {
			if onEnd != nil {
				onEnd()
			}
			return
		}
	}
}

func (n *narration) Pause() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.gen++
	n.player.Pause()
}

func (n *narration) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.gen++
	n.player.Pause()
	if err := n.player.Close(); err != nil {
		return fmt.Errorf("close audio player: %w", err)
	}
	return nil
}
