package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Source is an encoded audio payload.
type Source struct {
	MimeType string
	Data     []byte
}

// Format resolves the encoding from the MIME type, falling back to the payload's
// magic bytes.
func (s Source) Format() AudioFormat {
	mime, _, _ := strings.Cut(s.MimeType, ";")
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "audio/mp3", "audio/mpeg", "audio/mpeg3":
		return FormatMP3
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return FormatWAV
	}
	return sniff(s.Data)
}

func sniff(data []byte) AudioFormat {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync
		return FormatMP3
	}
	return FormatUnknown
}

// ParseDataURI decodes a data: URI such as data:audio/mp3;base64,....
func ParseDataURI(uri string) (Source, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Source{}, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Source{}, fmt.Errorf("malformed data uri: missing payload")
	}

	params := strings.Split(meta, ";")
	src := Source{MimeType: params[0]}

	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Source{}, fmt.Errorf("decode data uri: %w", err)
		}
		src.Data = data
	} else {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return Source{}, fmt.Errorf("decode data uri: %w", err)
		}
		src.Data = []byte(text)
	}

	if len(src.Data) == 0 {
		return Source{}, ErrEmptySource
	}
	return src, nil
}

// Fetch resolves a data URI, HTTP(S) URL or local path into a Source.
func Fetch(ctx context.Context, client *http.Client, target string) (Source, error) {
	switch {
	case strings.HasPrefix(target, "data:"):
		return ParseDataURI(target)

	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return Source{}, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return Source{}, fmt.Errorf("fetch audio: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Source{}, fmt.Errorf("fetch audio: unexpected status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return Source{}, fmt.Errorf("read audio: %w", err)
		}
		if len(data) == 0 {
			return Source{}, ErrEmptySource
		}
		return Source{MimeType: resp.Header.Get("Content-Type"), Data: data}, nil

	default:
		data, err := os.ReadFile(target)
		if err != nil {
			return Source{}, fmt.Errorf("read audio: %w", err)
		}
		if len(data) == 0 {
			return Source{}, ErrEmptySource
		}
		return Source{Data: data}, nil
	}
}
