package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alimgiray/champions/internal/repositories"
	"github.com/alimgiray/champions/internal/services"
	"github.com/alimgiray/champions/internal/workers"
	"github.com/alimgiray/champions/pkg/config"
	"github.com/alimgiray/champions/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init()

	// Seed the dedup ledger from previous runs
	championRepo := repositories.NewChampionRepository(cfg.Ledger.Path)
	ledger, err := services.LoadChampionLedger(championRepo)
	if err != nil {
		logger.Fatalf("Failed to load champions ledger: %v", err)
	}

	// Initialize GitHub client
	githubService, err := services.NewGitHubService(
		cfg.GitHub.APIURL, cfg.GitHub.Token, cfg.GitHub.EventsPageSize, cfg.Filters.ActivityWindowDays,
	)
	if err != nil {
		logger.Fatalf("Failed to initialize GitHub client: %v", err)
	}
	if cfg.GitHub.Token == "" {
		logger.GetLogger().Warn("GITHUB_TOKEN is not set, requests are unauthenticated")
	}

	rateLimiter := services.NewRateLimiter(githubService)
	qualificationService := services.NewQualificationService(cfg.Filters)

	worker := workers.NewCrawlWorker(
		"crawl-"+uuid.New().String(),
		workers.CrawlSettings{
			Query:               services.BuildSearchQuery(cfg.Search.Terms, cfg.Search.MinRepos),
			PageSize:            cfg.Search.PageSize,
			ForbiddenCooldown:   cfg.Search.ForbiddenCooldown,
			MaxForbiddenRetries: cfg.Search.MaxForbiddenRetries,
		},
		githubService,
		githubService,
		rateLimiter,
		qualificationService,
		ledger,
		championRepo,
	)

	logger.WithFields(logrus.Fields{
		"ledger":          championRepo.Path(),
		"known_champions": ledger.Len(),
	}).Info("Champions ledger loaded")

	// Stop between API calls on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.WithField("worker_id", worker.GetWorkerID()).Info("Crawl interrupted")
			return
		}
		logger.WithError(err).Error("Crawl ended abnormally")
		stop()
		os.Exit(1)
	}

	logger.Info("Crawl finished")
}
