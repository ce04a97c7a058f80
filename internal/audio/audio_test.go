package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmWAV builds a 16-bit stereo WAV file with n silent frames.
func pcmWAV(sampleRate, n int) []byte {
	data := make([]byte, n*4)
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate*4))
	_ = binary.Write(&b, binary.LittleEndian, uint16(4))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestParseDataURI(t *testing.T) {
	payload := []byte{0xFF, 0xFB, 0x90, 0x00}
	src, err := ParseDataURI("data:audio/mp3;base64," + base64.StdEncoding.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, "audio/mp3", src.MimeType)
	assert.Equal(t, payload, src.Data)
	assert.Equal(t, FormatMP3, src.Format())

	src, err = ParseDataURI("data:text/plain,hello%20there")
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(src.Data))

	_, err = ParseDataURI("data:audio/mp3;base64")
	assert.Error(t, err)
	_, err = ParseDataURI("data:audio/mp3;base64,!!!")
	assert.Error(t, err)
	_, err = ParseDataURI("data:audio/mp3;base64,")
	assert.ErrorIs(t, err, ErrEmptySource)
	_, err = ParseDataURI("https://example.com/a.mp3")
	assert.Error(t, err)
}

func TestSourceFormat(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want AudioFormat
	}{
		{"mpeg mime", Source{MimeType: "audio/mpeg"}, FormatMP3},
		{"mime with params", Source{MimeType: "audio/wav; codecs=1"}, FormatWAV},
		{"riff sniff", Source{Data: pcmWAV(8000, 1)}, FormatWAV},
		{"id3 sniff", Source{Data: []byte("ID3\x04")}, FormatMP3},
		{"unknown", Source{MimeType: "application/octet-stream", Data: []byte("nope")}, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.src.Format())
		})
	}
}

func TestFetch(t *testing.T) {
	wavData := pcmWAV(22050, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/speech.wav":
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(wavData)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	src, err := Fetch(ctx, srv.Client(), srv.URL+"/speech.wav")
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, src.Format())
	assert.Equal(t, wavData, src.Data)

	_, err = Fetch(ctx, srv.Client(), srv.URL+"/missing.wav")
	assert.ErrorContains(t, err, "404")

	path := filepath.Join(t.TempDir(), "local.wav")
	require.NoError(t, os.WriteFile(path, wavData, 0644))
	src, err = Fetch(ctx, nil, path)
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, src.Format())

	src, err = Fetch(ctx, nil, "data:audio/wav;base64,"+base64.StdEncoding.EncodeToString(wavData))
	require.NoError(t, err)
	assert.Equal(t, wavData, src.Data)
}

func TestDecodeWAV(t *testing.T) {
	stream, length, err := decode(Source{MimeType: "audio/wav", Data: pcmWAV(44100, 4410)}, 44100)
	require.NoError(t, err)
	require.NotNil(t, stream)
	assert.Equal(t, int64(4410*4), length)
	assert.Equal(t, 100*time.Millisecond, pcmDuration(length, 44100))

	_, _, err = decode(Source{MimeType: "audio/ogg", Data: []byte("OggS")}, 44100)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestPCMDuration(t *testing.T) {
	assert.Equal(t, time.Second, pcmDuration(44100*4, 44100))
	assert.Zero(t, pcmDuration(0, 44100))
	assert.Zero(t, pcmDuration(100, 0))
}

type fakePlayback struct {
	mu      sync.Mutex
	playing bool
	closes  int
	rewinds int
}

func (f *fakePlayback) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
}

func (f *fakePlayback) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakePlayback) Rewind() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewinds++
	return nil
}

func (f *fakePlayback) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakePlayback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakePlayback) finish() { f.Pause() }

func newTestNarration(p playback) *narration {
	return &narration{player: p, poll: time.Millisecond, logger: zerolog.Nop()}
}

func TestNarrationPlayReportsEnd(t *testing.T) {
	fp := &fakePlayback{}
	n := newTestNarration(fp)

	ended := make(chan struct{})
	require.NoError(t, n.Play(func() { close(ended) }))
	assert.True(t, fp.IsPlaying())
	fp.finish()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("end not reported")
	}
	assert.Equal(t, 1, fp.rewinds)
}

func TestNarrationCloseReleasesPlayer(t *testing.T) {
	fp := &fakePlayback{}
	n := newTestNarration(fp)

	ended := make(chan struct{}, 1)
	require.NoError(t, n.Play(func() { ended <- struct{}{} }))
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	assert.False(t, fp.IsPlaying())
	assert.Equal(t, 1, fp.closes)
	assert.ErrorIs(t, n.Play(nil), ErrClosed)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ended)
}
