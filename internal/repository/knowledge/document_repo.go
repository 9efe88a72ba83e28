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

// DocumentRepo 知识库文档仓库
type DocumentRepo struct {
	collection *mongo.Collection
}

// NewDocumentRepo 创建文档仓库
func NewDocumentRepo(db *mongo.Database) *DocumentRepo {
	return &DocumentRepo{
		collection: db.Collection("documents"),
	}
}

// Create 创建文档
func (r *DocumentRepo) Create(ctx context.Context, doc *knowledge.Document) error {
	now := time.Now()
	if doc.ID == "" {
		doc.ID = id.New()
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, doc)
	return err
}

// FindByID 根据ID查询文档
func (r *DocumentRepo) FindByID(ctx context.Context, docID string) (*knowledge.Document, error) {
	var doc knowledge.Document
	err := r.collection.FindOne(ctx, bson.M{"id": docID}).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByUserID 查询某个用户的文档列表
func (r *DocumentRepo) ListByUserID(ctx context.Context, userID string, page, pageSize int64) ([]*knowledge.Document, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).
		SetLimit(pageSize).
		SetSkip((page - 1) * pageSize)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []*knowledge.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ListIndexedByBotID 查询某个 Bot 可用的已索引文档
// 检索范围严格限定在 Bot 关联且已完成索引的文档
func (r *DocumentRepo) ListIndexedByBotID(ctx context.Context, botID string) ([]*knowledge.Document, error) {
	filter := bson.M{"bot_ids": botID, "is_indexed": true}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*knowledge.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// MarkIndexed 标记文档索引完成
func (r *DocumentRepo) MarkIndexed(ctx context.Context, docID string, fragmentCount int) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"is_indexed":     true,
			"fragment_count": fragmentCount,
			"indexed_at":     now,
			"updated_at":     now,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": docID}, update)
	return err
}

// MarkUnindexed 重置文档索引状态（重建索引前或索引失败后）
func (r *DocumentRepo) MarkUnindexed(ctx context.Context, docID string) error {
	update := bson.M{
		"$set": bson.M{
			"is_indexed":     false,
			"fragment_count": 0,
			"updated_at":     time.Now(),
		},
		"$unset": bson.M{"indexed_at": ""},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": docID}, update)
	return err
}

// SetBots 更新文档与 Bot 的关联
func (r *DocumentRepo) SetBots(ctx context.Context, docID string, botIDs []string) error {
	update := bson.M{
		"$set": bson.M{
			"bot_ids":    botIDs,
			"updated_at": time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"id": docID}, update)
	return err
}

// Delete 删除文档
func (r *DocumentRepo) Delete(ctx context.Context, docID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"id": docID})
	return err
}
