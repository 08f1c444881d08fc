package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tender/internal/config"
	"github.com/knoguchi/tender/internal/repository/postgres"
	"github.com/knoguchi/tender/internal/vectorstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and vector collection",
	Long: `Creates the pgvector extension, the projects, tender_files and
tender_chunks tables and their indexes. With SEARCH_BACKEND=qdrant the
chunk collection is created as well. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := migrate(cmd.Context()); err != nil {
			return err
		}
		cmd.Println("Migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(ctx context.Context) error {
	if cfg.StoreDriver == config.StorePostgres {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx, cfg.EmbeddingDimension); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database schema applied", "dimension", cfg.EmbeddingDimension)
	}

	if cfg.SearchBackend == config.SearchQdrant {
		qs, err := vectorstore.NewQdrantStore(cfg.QdrantGRPCURL, cfg.QdrantCollection)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer qs.Close()

		if err := qs.EnsureCollection(ctx, cfg.EmbeddingDimension); err != nil {
			return err
		}
		logger.Info("vector collection ready", "collection", cfg.QdrantCollection)
	}
	return nil
}
