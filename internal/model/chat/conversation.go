package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Conversation 对话实体
// Bot 与一个外部终端用户之间的持续会话；首条消息时创建
type Conversation struct {
	ID       string `bson:"id" json:"id"`
	BotID    string `bson:"bot_id" json:"bot_id"`
	UserID   string `bson:"user_id" json:"user_id"` // 消息平台内的用户ID
	UserName string `bson:"user_name,omitempty" json:"user_name,omitempty"`

	// 线索信息（由 save_lead 函数填充）
	IsLead    bool           `bson:"is_lead" json:"is_lead"`
	LeadPhone string         `bson:"lead_phone,omitempty" json:"lead_phone,omitempty"`
	LeadEmail string         `bson:"lead_email,omitempty" json:"lead_email,omitempty"`
	LeadData  map[string]any `bson:"lead_data,omitempty" json:"lead_data,omitempty"`

	StartedAt     time.Time `bson:"started_at" json:"started_at"`
	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
}

// Collection 返回集合名称
func (c *Conversation) Collection() string {
	return "conversations"
}

// EnsureIndexes 创建和维护索引
func (c *Conversation) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(c.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "bot_id", Value: 1}, bson.E{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_bot_user").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "bot_id", Value: 1}, bson.E{Key: "is_lead", Value: 1}},
			Options: options.Index().SetName("idx_bot_lead"),
		},
		{
			Keys:    bson.D{bson.E{Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("idx_last_message"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
