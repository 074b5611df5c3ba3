// Package embcache wraps an embedder with a key-value cache so repeated
// texts skip the provider round-trip.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hollis-labs/ragline/internal/db"
	"github.com/hollis-labs/ragline/internal/logger"
	"github.com/hollis-labs/ragline/internal/metrics"
)

// Embedder is the upstream provider being decorated.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}

// KV is the cache backend, satisfied by the redis store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves vectors from the cache and delegates misses to the
// wrapped embedder in a single upstream batch.
type CachedEmbedder struct {
	inner Embedder
	kv    KV
	ttl   time.Duration
}

// New wraps inner with a cache. Callers pass a positive TTL; entries always
// expire.
func New(inner Embedder, kv KV, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, kv: kv, ttl: ttl}
}

// ModelName reports the wrapped embedder's model tag.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Dimensions reports the wrapped embedder's vector width.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// EmbedBatch returns one vector per input text, preserving order. Cache
// failures degrade to provider calls rather than failing the batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	log := logger.FromContext(ctx)
	model := c.inner.ModelName()

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		data, err := c.kv.Get(ctx, c.cacheKey(text))
		if err != nil {
			if !errors.Is(err, db.ErrKeyNotFound) {
				log.Warn("embedding cache read failed", zap.Error(err))
			}
			metrics.EmbeddingCacheTotal.WithLabelValues(model, "miss").Inc()
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		vec, err := decodeVector(data)
		if err != nil {
			log.Warn("embedding cache entry corrupt", zap.Error(err))
			metrics.EmbeddingCacheTotal.WithLabelValues(model, "miss").Inc()
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues(model, "hit").Inc()
		vectors[i] = vec
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	for j, vec := range fresh {
		vectors[missIdx[j]] = vec
		if err := c.kv.SetWithTTL(ctx, c.cacheKey(missTexts[j]), encodeVector(vec), c.ttl); err != nil {
			log.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vectors, nil
}

// cacheKey includes the model tag so vectors from different models never
// collide.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "ragline:emb:" + hex.EncodeToString(h.Sum(nil))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector payload is %d bytes, not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
