package rag

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"thecloser/internal/model/knowledge"
)

// fakeEmbedder 固定向量的向量化实现
type fakeEmbedder struct {
	vector []float64
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for range texts {
		v, err := f.Embed(ctx, "")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func TestRetriever_Retrieve(t *testing.T) {
	Convey("检索器测试", t, func() {
		ctx := context.Background()

		doc := &knowledge.Document{ID: "doc-1", Title: "FAQ"}
		docs := &fakeDocumentSource{docs: map[string][]*knowledge.Document{
			"bot-1": {doc},
		}}
		frags := newFakeFragmentSource()
		frags.fragments["doc-1"] = []*knowledge.Fragment{
			{ID: "f1", DocumentID: "doc-1", Position: 0, Text: "Our refund window is 14 days.", Vector: []float64{1, 0, 0}},
			{ID: "f2", DocumentID: "doc-1", Position: 1, Text: "Shipping takes 3 days.", Vector: []float64{0, 1, 0}},
		}
		index := NewIndex(docs, frags)

		Convey("返回 top-k 命中及来源标题", func() {
			embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
			retriever := NewRetriever(embedder, index, nil)

			hits, err := retriever.Retrieve(ctx, "bot-1", "What is your refund policy?", 1)
			So(err, ShouldBeNil)
			So(hits, ShouldHaveLength, 1)
			So(hits[0].Text, ShouldEqual, "Our refund window is 14 days.")
			So(hits[0].SourceTitle, ShouldEqual, "FAQ")
			So(hits[0].Similarity, ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("没有关联文档的 Bot 返回空而不是错误", func() {
			embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
			retriever := NewRetriever(embedder, index, nil)

			hits, err := retriever.Retrieve(ctx, "bot-empty", "anything", 5)
			So(err, ShouldBeNil)
			So(hits, ShouldBeEmpty)
		})

		Convey("top_k 非正数时不调用向量化", func() {
			embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
			retriever := NewRetriever(embedder, index, nil)

			hits, err := retriever.Retrieve(ctx, "bot-1", "anything", 0)
			So(err, ShouldBeNil)
			So(hits, ShouldBeEmpty)
			So(embedder.calls, ShouldEqual, 0)
		})

		Convey("向量化失败向上传播 EmbeddingError", func() {
			embedErr := &EmbeddingError{Err: errors.New("rate limited")}
			embedder := &fakeEmbedder{err: embedErr}
			retriever := NewRetriever(embedder, index, nil)

			_, err := retriever.Retrieve(ctx, "bot-1", "anything", 5)
			So(err, ShouldNotBeNil)

			var ee *EmbeddingError
			So(errors.As(err, &ee), ShouldBeTrue)
		})
	})
}
