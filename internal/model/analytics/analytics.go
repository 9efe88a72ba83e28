package analytics

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Daily 每个 Bot 的按日统计
type Daily struct {
	ID    string `bson:"id" json:"id"`
	BotID string `bson:"bot_id" json:"bot_id"`
	Date  string `bson:"date" json:"date"` // YYYY-MM-DD

	ConversationsCount int `bson:"conversations_count" json:"conversations_count"`
	LeadsCount         int `bson:"leads_count" json:"leads_count"`
	MessagesCount      int `bson:"messages_count" json:"messages_count"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Collection 返回集合名称
func (d *Daily) Collection() string {
	return "analytics"
}

// EnsureIndexes 创建和维护索引
func (d *Daily) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(d.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "bot_id", Value: 1}, bson.E{Key: "date", Value: 1}},
			Options: options.Index().SetName("idx_bot_date").SetUnique(true),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
