package rag

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"thecloser/internal/model/knowledge"
)

// documentSource 提供 Bot 可检索的文档集合
type documentSource interface {
	ListIndexedByBotID(ctx context.Context, botID string) ([]*knowledge.Document, error)
}

// fragmentSource 提供切片的读写
type fragmentSource interface {
	ReplaceForDocument(ctx context.Context, docID string, fragments []*knowledge.Fragment) error
	ListByDocuments(ctx context.Context, docIDs []string) ([]*knowledge.Fragment, error)
}

// Scored 一条带相似度的检索结果
type Scored struct {
	Fragment    *knowledge.Fragment
	SourceTitle string
	Similarity  float64
}

// Index 知识库向量索引
// 小语料直接在进程内做余弦相似度暴力扫描，检索范围严格按 Bot 隔离
type Index struct {
	documents documentSource
	fragments fragmentSource
}

// NewIndex 创建索引
func NewIndex(documents documentSource, fragments fragmentSource) *Index {
	return &Index{documents: documents, fragments: fragments}
}

// UpsertDocument 整体替换文档的全部切片（先删后插，重建不追加）
func (i *Index) UpsertDocument(ctx context.Context, docID string, fragments []*knowledge.Fragment) error {
	return i.fragments.ReplaceForDocument(ctx, docID, fragments)
}

// Query 在 Bot 关联的已索引文档内检索 top-k 相似切片
// 相似度取余弦相似度（越大越近）；相等时按 (document_id, position) 稳定排序
// Bot 没有可检索文档或没有切片时返回空序列而不是错误
func (i *Index) Query(ctx context.Context, botID string, queryVector []float64, topK int) ([]Scored, error) {
	if topK <= 0 {
		return nil, nil
	}

	docs, err := i.documents.ListIndexedByBotID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	docIDs := make([]string, 0, len(docs))
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		docIDs = append(docIDs, d.ID)
		titles[d.ID] = d.Title
	}

	fragments, err := i.fragments.ListByDocuments(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(fragments))
	for _, f := range fragments {
		if len(f.Vector) != len(queryVector) {
			log.Warn().
				Str("fragment_id", f.ID).
				Int("got", len(f.Vector)).
				Int("want", len(queryVector)).
				Msg("fragment vector dimensionality mismatch, skipped")
			continue
		}
		scored = append(scored, Scored{
			Fragment:    f,
			SourceTitle: titles[f.DocumentID],
			Similarity:  CosineSimilarity(queryVector, f.Vector),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Similarity != scored[b].Similarity {
			return scored[a].Similarity > scored[b].Similarity
		}
		if scored[a].Fragment.DocumentID != scored[b].Fragment.DocumentID {
			return scored[a].Fragment.DocumentID < scored[b].Fragment.DocumentID
		}
		return scored[a].Fragment.Position < scored[b].Fragment.Position
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// CosineSimilarity 余弦相似度（点积除以范数积）
// 任一向量为零向量时返回 0
func CosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
