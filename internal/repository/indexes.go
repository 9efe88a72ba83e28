package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"thecloser/internal/model/analytics"
	"thecloser/internal/model/bot"
	"thecloser/internal/model/chat"
	"thecloser/internal/model/knowledge"
	"thecloser/internal/pkg/mongodb"
)

// EnsureIndexes 在应用启动时为所有模型创建索引
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return mongodb.EnsureAllIndexes(ctx, db,
		&bot.Agent{},
		&bot.Function{},
		&chat.Conversation{},
		&chat.Message{},
		&knowledge.Document{},
		&knowledge.Fragment{},
		&analytics.Daily{},
	)
}
