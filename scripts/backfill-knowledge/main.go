// backfill-knowledge sweeps approved and completed solutions whose content
// was never forwarded to the learning service and captures them now.
//
// Already-captured solutions are skipped, so the sweep is safe to re-run.
// Captures run synchronously; use -limit to bound one sweep.
//
// Usage: go run ./scripts/backfill-knowledge [-limit=100] [-dry-run=false]
//
// Database connection: uses the PG* environment variables.
// Learning service: uses LEARNING_BASE_URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/config"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/database"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/learning"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services"
)

func main() {
	limit := flag.Int("limit", 100, "Maximum number of solutions to capture in one sweep")
	dryRun := flag.Bool("dry-run", false, "List candidate solutions without capturing")
	flag.Parse()

	cfg, err := config.Load("backfill")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: 5,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	solutionRepo := repositories.NewSolutionRepository(db)

	if *dryRun {
		candidates, err := solutionRepo.ListUncaptured(ctx, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list candidates: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Would capture %d solution(s):\n", len(candidates))
		for _, s := range candidates {
			fmt.Printf("  %s  %-12s  %s\n", s.ID, s.Status, s.Title)
		}
		return
	}

	learningClient := learning.NewClient(cfg.Learning.BaseURL, logger)
	backfill := services.NewKnowledgeBackfill(solutionRepo, learningClient, logger)

	summary, err := backfill.Run(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backfill failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Backfill complete: scanned=%d captured=%d skipped=%d failed=%d\n",
		summary.Scanned, summary.Captured, summary.Skipped, summary.Failed)
}
