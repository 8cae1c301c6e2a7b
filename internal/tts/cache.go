package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/loansight/assistant/internal/observability"
)

// CachedSynthesizer keeps recently synthesized audio so reading the same
// selection again does not hit the provider
type CachedSynthesizer struct {
	next  Synthesizer
	cache *cache.Cache
}

// NewCachedSynthesizer wraps next with an in-memory cache. Entries expire after ttl.
func NewCachedSynthesizer(next Synthesizer, ttl time.Duration) *CachedSynthesizer {
	return &CachedSynthesizer{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// SampleRate returns the rate of the wrapped synthesizer
func (c *CachedSynthesizer) SampleRate() int {
	return c.next.SampleRate()
}

// Synthesize returns cached audio for text or synthesizes and stores it
func (c *CachedSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		observability.RecordSynthesisCacheHit()
		return v.([]byte), nil
	}

	pcm, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, pcm)
	return pcm, nil
}

// Len returns the number of cached entries, expired ones included until cleanup
func (c *CachedSynthesizer) Len() int {
	return c.cache.ItemCount()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
