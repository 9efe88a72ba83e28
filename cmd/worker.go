package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"thecloser/internal/ai"
	"thecloser/internal/ai/component"
	"thecloser/internal/model/bot"
	"thecloser/internal/pkg/cache"
	"thecloser/internal/pkg/mongodb"
	"thecloser/internal/rag"
	"thecloser/internal/repository"
	analyticsrepo "thecloser/internal/repository/analytics"
	botrepo "thecloser/internal/repository/bot"
	chatrepo "thecloser/internal/repository/chat"
	knowledgerepo "thecloser/internal/repository/knowledge"
	"thecloser/internal/service"
	"thecloser/internal/transport"
	"thecloser/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the bot worker",
	Long: `Start the bot worker: keeps every active bot connected to its
messenger platform, answers incoming messages and runs daily maintenance.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	flags := workerCmd.Flags()

	flags.String("platform", "telegram", "messenger platform this worker serves")
	flags.Duration("reconcile-interval", 0, "bot reconcile interval (default from config)")

	_ = viper.BindPFlag("worker.platform", flags.Lookup("platform"))
	_ = viper.BindPFlag("worker.reconcile_interval", flags.Lookup("reconcile-interval"))
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB（必需）
	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		if cerr := mongoClient.Close(context.Background()); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close MongoDB connection")
		}
	}()
	db := mongoClient.Database()

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// Redis（可选，检索缓存）
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, rerr := cache.NewRedisCache(&cfg.Redis)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			defer redisCache.Close()
		}
	}

	agentRepo := botrepo.NewAgentRepo(db)
	functionRepo := botrepo.NewFunctionRepo(db)
	convRepo := chatrepo.NewConversationRepo(db)
	msgRepo := chatrepo.NewMessageRepo(db)
	docRepo := knowledgerepo.NewDocumentRepo(db)
	fragRepo := knowledgerepo.NewFragmentRepo(db)
	dailyRepo := analyticsrepo.NewDailyRepo(db)

	// 知识检索（向量化模型缺失时退化为纯对话）
	var retriever ai.KnowledgeRetriever
	if cfg.EmbeddingAPIKey() != "" {
		embedder, eerr := rag.NewOpenAIEmbedder(ctx, cfg)
		if eerr != nil {
			log.Warn().Err(eerr).Msg("embedder not available, bots answer without knowledge base")
		} else {
			retriever = rag.NewRetriever(embedder, rag.NewIndex(docRepo, fragRepo), redisCache)
		}
	} else {
		log.Warn().Msg("embedding API key not configured, bots answer without knowledge base")
	}

	chatModel, err := component.NewChatModel(ctx, &cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}

	registry := transport.NewRegistry()
	functionSvc := service.NewFunctionService(functionRepo, agentRepo, convRepo, registry, cfg.Server.BaseURL)
	composer := ai.NewComposer(chatModel, retriever, functionRepo, functionSvc, nil, cfg.AI.RequestTimeout)
	session := worker.NewSession(agentRepo, convRepo, msgRepo, composer, cfg.Worker.HistoryLimit)

	dialer := transport.NewMemoryDialer()
	sup := worker.NewSupervisor(agentRepo, dialer, session, registry,
		bot.Platform(cfg.Worker.Platform), cfg.Worker.ReconcileInterval)

	janitor := worker.NewJanitor(convRepo, msgRepo, agentRepo, dailyRepo, cfg.Worker.RetentionDays)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	go janitor.Run(ctx)

	log.Info().Str("platform", cfg.Worker.Platform).Msg("starting bot worker")
	sup.Run(ctx)
	return nil
}
