package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"thecloser/internal/ai"
	"thecloser/internal/ai/component"
	"thecloser/internal/config"
	"thecloser/internal/handler"
	"thecloser/internal/pkg/cache"
	"thecloser/internal/pkg/mongodb"
	"thecloser/internal/pkg/storagefactory"
	"thecloser/internal/rag"
	"thecloser/internal/repository"
	analyticsrepo "thecloser/internal/repository/analytics"
	botrepo "thecloser/internal/repository/bot"
	chatrepo "thecloser/internal/repository/chat"
	knowledgerepo "thecloser/internal/repository/knowledge"
	"thecloser/internal/server/middleware"
	"thecloser/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB (可选)
	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, continuing without it")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			// 创建索引
			if err := repository.EnsureIndexes(context.Background(), mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	// 初始化 Redis (可选)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// API v1
	v1 := s.engine.Group("/api/v1")

	if s.mongo == nil {
		log.Warn().Msg("MongoDB not configured, API endpoints disabled")
		return
	}
	db := s.mongo.Database()

	agentRepo := botrepo.NewAgentRepo(db)
	docRepo := knowledgerepo.NewDocumentRepo(db)
	fragRepo := knowledgerepo.NewFragmentRepo(db)
	convRepo := chatrepo.NewConversationRepo(db)
	msgRepo := chatrepo.NewMessageRepo(db)
	dailyRepo := analyticsrepo.NewDailyRepo(db)

	index := rag.NewIndex(docRepo, fragRepo)

	// Bot 管理
	botHandler := handler.NewBotHandler(agentRepo, dailyRepo)
	v1.POST("/bots", botHandler.Create)
	v1.GET("/bots", botHandler.List)
	v1.GET("/bots/:id", botHandler.Get)
	v1.POST("/bots/:id/pause", botHandler.Pause)
	v1.POST("/bots/:id/resume", botHandler.Resume)
	v1.GET("/bots/:id/analytics", botHandler.Analytics)

	// 对话查询
	convHandler := handler.NewConversationHandler(convRepo, msgRepo)
	v1.GET("/conversations", convHandler.List)
	v1.GET("/conversations/:id/messages", convHandler.Messages)

	// 知识库文档：需要存储后端和向量化模型
	if s.cfg.EmbeddingAPIKey() == "" {
		log.Warn().Msg("embedding API key not configured, document and chat endpoints disabled")
		return
	}
	embedder, err := rag.NewOpenAIEmbedder(context.Background(), s.cfg)
	if err != nil {
		log.Warn().Err(err).Msg("embedder not available, document endpoints disabled")
	} else {
		store, serr := storagefactory.NewStorage(context.Background(), &s.cfg.Storage)
		if serr != nil {
			log.Warn().Err(serr).Msg("storage not available, document endpoints disabled")
		} else {
			chunker := rag.NewChunker(s.cfg.RAG.ChunkSize, s.cfg.RAG.ChunkOverlap)
			knowledgeSvc := service.NewKnowledgeService(docRepo, index, embedder, chunker, store)

			docHandler := handler.NewDocumentHandler(knowledgeSvc)
			v1.POST("/documents", docHandler.Upload)
			v1.GET("/documents", docHandler.List)
			v1.POST("/documents/:id/index", docHandler.Index)
			v1.DELETE("/documents/:id", docHandler.Delete)
			v1.PUT("/documents/:id/bots", docHandler.SetBots)
		}

		// 知识库问答测试入口：还需要对话模型
		chatModel, merr := component.NewChatModel(context.Background(), &s.cfg.AI)
		if merr != nil {
			log.Warn().Err(merr).Msg("chat model not available, chat endpoint disabled")
		} else {
			retriever := rag.NewRetriever(embedder, index, s.redis)
			composer := ai.NewComposer(chatModel, retriever, nil, nil, nil, s.cfg.AI.RequestTimeout)

			chatHandler := handler.NewChatHandler(agentRepo, composer)
			v1.POST("/bots/:id/chat", chatHandler.Ask)
		}
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 关闭连接
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
