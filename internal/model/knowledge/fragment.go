package knowledge

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Fragment 文档切片及其向量表示
// 创建后不可变；重建索引时整体替换
// 不变式：position 从 0 连续递增，保持原文顺序
type Fragment struct {
	ID         string    `bson:"id" json:"id"`
	DocumentID string    `bson:"document_id" json:"document_id"`
	Position   int       `bson:"position" json:"position"` // 在文档中的序号（0 起）
	Text       string    `bson:"text" json:"text"`
	Vector     []float64 `bson:"vector" json:"-"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// Collection 返回集合名称
func (f *Fragment) Collection() string {
	return "fragments"
}

// EnsureIndexes 创建和维护索引
func (f *Fragment) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(f.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "document_id", Value: 1}, bson.E{Key: "position", Value: 1}},
			Options: options.Index().SetName("idx_document_position"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
