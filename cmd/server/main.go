package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/portfolio-ledger/internal/api"
	"github.com/trogers1052/portfolio-ledger/internal/config"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/kafka"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/prices"
)

func main() {
	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	var priceProvider prices.Provider
	if cfg.Prices.Enabled {
		priceProvider = prices.NewYahooProvider()
		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
			priceProvider = prices.NewCachedProvider(priceProvider, client, cfg.Prices.CacheTTL)
		}
	}

	var publisher ledger.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	service := ledger.NewService(db, priceProvider, publisher)
	handler := api.NewHandler(service)
	router := api.SetupRoutes(handler)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("portfolio ledger listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
