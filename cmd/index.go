package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"thecloser/internal/pkg/mongodb"
	"thecloser/internal/pkg/storagefactory"
	"thecloser/internal/rag"
	"thecloser/internal/repository"
	knowledgerepo "thecloser/internal/repository/knowledge"
	"thecloser/internal/service"
)

var indexCmd = &cobra.Command{
	Use:   "index <document-id>",
	Short: "Index a knowledge base document",
	Long: `Extract, chunk and embed a previously uploaded document and write
its fragments into the knowledge index.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	docID := args[0]

	if cfg.EmbeddingAPIKey() == "" {
		return fmt.Errorf("embedding API key not configured")
	}

	ctx := context.Background()

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

	store, err := storagefactory.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	embedder, err := rag.NewOpenAIEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	docRepo := knowledgerepo.NewDocumentRepo(db)
	fragRepo := knowledgerepo.NewFragmentRepo(db)
	index := rag.NewIndex(docRepo, fragRepo)
	chunker := rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	svc := service.NewKnowledgeService(docRepo, index, embedder, chunker, store)

	count, err := svc.IndexDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", docID, err)
	}

	fmt.Printf("document %s indexed: %d fragments\n", docID, count)
	return nil
}
