package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/qmuntal/gltf"
	"github.com/rs/zerolog"
)

// Progress receives load progress as a percentage in [0, 100].
type Progress func(percent float64)

// Loader fetches and decodes character and background assets from files or HTTP.
type Loader struct {
	client *http.Client
	logger zerolog.Logger
}

// NewLoader creates a loader. A nil client gets a 60 second timeout client.
func NewLoader(client *http.Client, logger zerolog.Logger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Loader{
		client: client,
		logger: logger.With().Str("component", "asset").Logger(),
	}
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// LoadCharacter reads a .glb or .gltf from url and decodes it. Remote documents must be
// self-contained (GLB or data URIs); local .gltf files may reference sibling buffers.
func (l *Loader) LoadCharacter(ctx context.Context, url string, progress Progress) (*Character, error) {
	report := func(p float64) {
		if progress != nil {
			progress(p)
		}
	}
	report(0)

	start := time.Now()
	var doc *gltf.Document

	if isRemote(url) {
		data, err := l.fetch(ctx, url, report)
		if err != nil {
			return nil, err
		}
		doc = new(gltf.Document)
		if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", url, err)
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := gltf.Open(url)
		if err != nil {
			return nil, fmt.Errorf("open gltf: %w", err)
		}
		doc = d
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch, err := FromDocument(doc, url)
	if err != nil {
		return nil, err
	}
	report(100)

	l.logger.Info().
		Str("url", url).
		Int("meshes", len(ch.Meshes)).
		Int("vertices", ch.VertexCount()).
		Strs("clips", ch.ClipNames()).
		Dur("took", time.Since(start)).
		Msg("character loaded")
	return ch, nil
}

// Fetch returns the raw bytes behind url, which may be a local path or an HTTP(S) URL.
func (l *Loader) Fetch(ctx context.Context, url string) ([]byte, error) {
	if isRemote(url) {
		return l.fetch(ctx, url, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(url)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

func (l *Loader) fetch(ctx context.Context, url string, report Progress) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if report != nil && resp.ContentLength > 0 {
		r = &progressReader{r: resp.Body, total: resp.ContentLength, report: report}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

// progressReader reports the share of total bytes read, capped below 100 until decoding finishes.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := int(p.read * 99 / p.total)
	if pct > 99 {
		pct = 99
	}
	if pct > p.last {
		p.last = pct
		p.report(float64(pct))
	}
	return n, err
}
