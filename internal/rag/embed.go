package rag

import (
	"context"
	"errors"
	"time"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog/log"

	"thecloser/internal/config"
	"thecloser/internal/pkg/retry"
)

// Embedder 文本向量化接口
// 向量维度由模型固定，查询向量与入库向量必须同维
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbedder 基于 OpenAI embedding API 的向量化实现
// 限流和瞬时错误按指数退避重试，重试耗尽返回 EmbeddingError
type OpenAIEmbedder struct {
	client     embedding.Embedder
	policy     retry.Policy
	batchSize  int
	batchPause time.Duration
}

// NewOpenAIEmbedder 创建向量化客户端
func NewOpenAIEmbedder(ctx context.Context, cfg *config.Config) (*OpenAIEmbedder, error) {
	embedCfg := &openaiembed.EmbeddingConfig{
		APIKey: cfg.EmbeddingAPIKey(),
		Model:  cfg.Embedding.Model,
	}
	if cfg.Embedding.BaseURL != "" {
		embedCfg.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Embedding.Dimensions > 0 {
		dims := cfg.Embedding.Dimensions
		embedCfg.Dimensions = &dims
	}

	client, err := openaiembed.NewEmbedder(ctx, embedCfg)
	if err != nil {
		return nil, err
	}

	policy := retry.New(cfg.Embedding.MaxRetries, cfg.Embedding.RetryBaseDelay)

	return &OpenAIEmbedder{
		client:     client,
		policy:     policy,
		batchSize:  cfg.RAG.BatchSize,
		batchPause: cfg.RAG.BatchPause,
	}, nil
}

// Embed 向量化单条文本
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var vector []float64

	err := e.policy.Do(ctx, func() error {
		vectors, err := e.client.EmbedStrings(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(vectors) == 0 {
			return errors.New("embedding API returned no vectors")
		}
		vector = vectors[0]
		return nil
	}, embedRetryable)

	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	log.Debug().Int("dimensions", len(vector)).Msg("embedding received")
	return vector, nil
}

// EmbedBatch 向量化一批文本
// 批内逐条串行处理，批间停顿，控制 API 成本而不追求并行吞吐
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	batchSize := e.batchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	vectors := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		log.Info().Int("batch", i/batchSize+1).Int("size", end-i).Msg("embedding batch")

		for _, text := range texts[i:end] {
			vector, err := e.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, vector)
		}

		if end < len(texts) && e.batchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, &EmbeddingError{Err: ctx.Err()}
			case <-time.After(e.batchPause):
			}
		}
	}

	return vectors, nil
}

// embedRetryable 上下文取消不重试，其余 API 错误都按瞬时错误处理
func embedRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
