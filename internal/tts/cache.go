package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedSynthesizer memoizes synthesis results keyed by provider, voice, speed and text.
type CachedSynthesizer struct {
	next  Synthesizer
	store *cache.Cache
}

// NewCachedSynthesizer wraps next with a cache whose entries live for ttl.
func NewCachedSynthesizer(next Synthesizer, ttl time.Duration) *CachedSynthesizer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedSynthesizer{
		next:  next,
		store: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedSynthesizer) Name() string {
	return c.next.Name()
}

func (c *CachedSynthesizer) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	key := cacheKey(c.next.Name(), req)
	if v, ok := c.store.Get(key); ok {
		hit := *v.(*SynthesizeResponse)
		hit.Cached = true
		hit.ProcessingTime = 0
		return &hit, nil
	}

	resp, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	c.store.SetDefault(key, resp)
	return resp, nil
}

// Len reports the number of cached results.
func (c *CachedSynthesizer) Len() int {
	return c.store.ItemCount()
}

func cacheKey(provider string, req *SynthesizeRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%g|%s", provider, req.VoiceID, req.Speed, req.Text)))
	return hex.EncodeToString(sum[:])
}
