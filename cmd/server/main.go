package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/pulsecrm/engage/internal/ai"
	"github.com/pulsecrm/engage/internal/api"
	"github.com/pulsecrm/engage/internal/campaign"
	"github.com/pulsecrm/engage/internal/config"
	"github.com/pulsecrm/engage/internal/personalize"
	"github.com/pulsecrm/engage/internal/queue"
	"github.com/pulsecrm/engage/internal/repository/postgres"
	"github.com/pulsecrm/engage/internal/segmentation"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("[Server] failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("[Server] failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("[Server] database unreachable: %v", err)
	}
	cancel()
	log.Printf("[Server] database connected")

	brokerCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	broker, err := queue.NewRedisBroker(brokerCtx, cfg.Redis.URL)
	cancel()
	if err != nil {
		log.Fatalf("[Server] redis unreachable: %v", err)
	}
	defer broker.Close()
	log.Printf("[Server] redis connected: %s", cfg.Redis.URL)

	segSvc := segmentation.NewService(postgres.NewSegmentRepo(db), segmentation.NewEngine(db))
	campSvc := campaign.NewService(
		postgres.NewCampaignRepo(db),
		postgres.NewCommLogRepo(db),
		segSvc,
		broker,
	)
	aiSvc := ai.NewService(newGenerator(cfg))

	router := api.SetupRoutes(&api.Handlers{
		Segments:    api.NewSegmentAPI(segSvc),
		Campaigns:   api.NewCampaignAPI(campSvc),
		Receipts:    api.NewReceiptAPI(broker),
		AI:          api.NewAIAPI(aiSvc, campSvc),
		Personalize: api.NewPersonalizeAPI(personalize.NewLiquidEngine()),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[Server] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] listen failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("[Server] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] shutdown error: %v", err)
	}
}

// newGenerator builds the configured AI provider. A nil generator is valid:
// the resilience layer then serves fallbacks only.
func newGenerator(cfg *config.Config) ai.Generator {
	switch cfg.AI.Provider {
	case "bedrock":
		gen, err := ai.NewBedrockGenerator(cfg.AI.BedrockModelID)
		if err != nil {
			log.Printf("[Server] bedrock unavailable, running on fallbacks: %v", err)
			return nil
		}
		return gen
	case "openai":
		gen, err := ai.NewOpenAIGenerator(cfg.OpenAIAPIKey(), cfg.AI.OpenAIModel, cfg.AI.OpenAIEndpoint, nil)
		if err != nil {
			log.Printf("[Server] openai unavailable, running on fallbacks: %v", err)
			return nil
		}
		return gen
	default:
		log.Printf("[Server] no AI provider configured, running on fallbacks")
		return nil
	}
}
