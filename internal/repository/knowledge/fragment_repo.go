package knowledge

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"thecloser/internal/model/knowledge"
	"thecloser/internal/pkg/id"
)

// FragmentRepo 文档切片仓库
type FragmentRepo struct {
	collection *mongo.Collection
}

// NewFragmentRepo 创建切片仓库
func NewFragmentRepo(db *mongo.Database) *FragmentRepo {
	return &FragmentRepo{
		collection: db.Collection("fragments"),
	}
}

// ReplaceForDocument 整体替换文档的全部切片
// 重建索引是替换不是追加：先删旧再插新
func (r *FragmentRepo) ReplaceForDocument(ctx context.Context, docID string, fragments []*knowledge.Fragment) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"document_id": docID}); err != nil {
		return err
	}
	if len(fragments) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]any, 0, len(fragments))
	for _, f := range fragments {
		if f.ID == "" {
			f.ID = id.New()
		}
		f.DocumentID = docID
		f.CreatedAt = now
		docs = append(docs, f)
	}

	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

// ListByDocuments 查询一组文档的全部切片（按文档和位置排序）
func (r *FragmentRepo) ListByDocuments(ctx context.Context, docIDs []string) ([]*knowledge.Fragment, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{"document_id": bson.M{"$in": docIDs}}
	opts := options.Find().SetSort(bson.D{
		bson.E{Key: "document_id", Value: 1},
		bson.E{Key: "position", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var fragments []*knowledge.Fragment
	if err := cursor.All(ctx, &fragments); err != nil {
		return nil, err
	}
	return fragments, nil
}

// DeleteByDocument 删除文档的全部切片
func (r *FragmentRepo) DeleteByDocument(ctx context.Context, docID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"document_id": docID})
	return err
}

// CountByDocument 统计文档切片数
func (r *FragmentRepo) CountByDocument(ctx context.Context, docID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"document_id": docID})
}
