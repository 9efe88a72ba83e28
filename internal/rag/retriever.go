package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog/log"

	"thecloser/internal/pkg/cache"
)

// Hit 一条检索命中
type Hit struct {
	Text        string  `json:"text"`
	SourceTitle string  `json:"source_title"`
	Similarity  float64 `json:"similarity"`
}

// Retriever 查询检索器：向量化查询文本后委托索引做相似度检索
// "没有结果"不是错误，返回空序列；向量化本身失败则向上传播 EmbeddingError
type Retriever struct {
	embedder Embedder
	index    *Index
	cache    *cache.RedisCache // 可选，nil 时直连 embedding API
}

// NewRetriever 创建检索器
func NewRetriever(embedder Embedder, index *Index, redisCache *cache.RedisCache) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		cache:    redisCache,
	}
}

// Retrieve 检索某个 Bot 知识库中与查询最相似的 top-k 切片
func (r *Retriever) Retrieve(ctx context.Context, botID, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.index.Query(ctx, botID, queryVector, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, Hit{
			Text:        s.Fragment.Text,
			SourceTitle: s.SourceTitle,
			Similarity:  s.Similarity,
		})
	}

	log.Info().Str("bot_id", botID).Int("hits", len(hits)).Msg("knowledge base searched")
	return hits, nil
}

// embedQuery 向量化查询文本，命中缓存时不再调用 embedding API
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float64, error) {
	if r.cache == nil {
		return r.embedder.Embed(ctx, query)
	}

	key := cache.QueryEmbeddingKey(hashQuery(query))

	var cached []float64
	if err := r.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, vector, cache.QueryEmbeddingTTL); err != nil {
		log.Warn().Err(err).Msg("failed to cache query embedding")
	}
	return vector, nil
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}
