package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/pulsecrm/engage/internal/campaign"
	"github.com/pulsecrm/engage/internal/config"
	"github.com/pulsecrm/engage/internal/queue"
	"github.com/pulsecrm/engage/internal/reconcile"
	"github.com/pulsecrm/engage/internal/repository/postgres"
)

// The worker process runs the two queue consumers: the dispatch pool that
// drains delivery jobs into the vendor, and the reconciler that applies
// delivery receipts.
func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("[Worker] failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("[Worker] failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("[Worker] database unreachable: %v", err)
	}
	cancel()

	brokerCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	broker, err := queue.NewRedisBroker(brokerCtx, cfg.Redis.URL)
	cancel()
	if err != nil {
		log.Fatalf("[Worker] redis unreachable: %v", err)
	}
	defer broker.Close()

	ctx, stop := context.WithCancel(context.Background())

	sender := campaign.NewHTTPSender(cfg.Vendor.Endpoint, cfg.VendorAPIKey(), nil)
	dispatcher := campaign.NewDispatcher(broker, sender, cfg.Worker.NumWorkers)
	dispatcher.Start(ctx)

	consumer := reconcile.NewConsumer(broker, reconcile.New(postgres.NewReconcileStore(db)))
	consumer.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("[Worker] shutting down")

	stop()
	dispatcher.Wait()
	consumer.Wait()
}
