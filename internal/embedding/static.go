package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/dvujovic/news-pipeline/internal/textutil"
)

const staticDims = 64

// StaticClient derives deterministic unit vectors from token content. Texts
// sharing vocabulary land close together in the vector space, so the dedup
// engine behaves realistically in tests and offline runs without a model
// server.
type StaticClient struct {
	dims int
}

var _ Client = (*StaticClient)(nil)

func NewStaticClient() *StaticClient {
	return &StaticClient{dims: staticDims}
}

func (c *StaticClient) Generate(ctx context.Context, req Request) (*Response, error) {
	return &Response{Embedding: c.embed(req.Prompt)}, nil
}

func (c *StaticClient) GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	out := make([][]float32, len(req.Prompts))
	for i, p := range req.Prompts {
		out[i] = c.embed(p)
	}
	return &BatchResponse{Embeddings: out}, nil
}

// embed hashes each token into a few dimensions and normalizes the sum, a
// random-projection style bag of words.
func (c *StaticClient) embed(text string) []float32 {
	vec := make([]float32, c.dims)
	for _, tok := range textutil.Tokenize(text) {
		if textutil.IsStopword(tok) {
			continue
		}
		sum := sha256.Sum256([]byte(tok))
		for i := 0; i < 4; i++ {
			idx := binary.BigEndian.Uint32(sum[i*8:]) % uint32(c.dims)
			sign := float32(1)
			if sum[i*8+4]%2 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
