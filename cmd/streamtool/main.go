package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/solanatracker/data-api-sdk/aggregation"
	"github.com/solanatracker/data-api-sdk/cache"
	"github.com/solanatracker/data-api-sdk/config"
	"github.com/solanatracker/data-api-sdk/models"
	"github.com/solanatracker/data-api-sdk/rest"
	"github.com/solanatracker/data-api-sdk/sink"
	"github.com/solanatracker/data-api-sdk/stream"
)

func main() {
	token := flag.String("token", "", "token address to follow")
	wallet := flag.String("wallet", "", "wallet address to follow")
	history := flag.Bool("history", false, "fetch the token's trade history and print windowed stats, then exit")
	apiURL := flag.String("api-url", "https://data.solanatracker.io", "REST API base URL")
	flag.Parse()

	if *token == "" && *wallet == "" {
		log.Fatal("provide -token and/or -wallet")
	}

	// Load configuration from environment variables
	cfg := config.LoadConfig()
	log.Println("✅ Configuration loaded successfully")

	if *history {
		if *token == "" {
			log.Fatal("-history requires -token")
		}
		runHistory(cfg, *apiURL, *token)
		return
	}

	client := stream.NewClient(cfg)
	defer client.Close()

	// Optional Kafka forwarding of deduplicated trade payloads
	var forwarder *sink.TradeForwarder
	if cfg.KafkaBrokers != "" {
		var err error
		forwarder, err = sink.NewTradeForwarder(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("failed to create trade forwarder: %v", err)
		}
		defer forwarder.Close()
	}

	// Optional Redis cache probe so misconfiguration surfaces at startup
	if cfg.RedisAddr != "" {
		statsCache := cache.NewStatsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StatsTTL)
		defer statsCache.Close()
		if err := statsCache.Ping(context.Background()); err != nil {
			log.Fatalf("redis unavailable: %v", err)
		}
	}

	client.SetHandlers(stream.LifecycleHandlers{
		OnConnected: func() {
			log.Println("🔌 Connected to datastream")
		},
		OnDisconnected: func(channel models.ChannelType, err error) {
			if channel == "" {
				log.Println("🛑 Session ended")
				return
			}
			log.Printf("⚠️  Channel %s closed: %v", channel, err)
		},
		OnReconnecting: func(attempt int) {
			log.Printf("🔄 Reconnecting, attempt %d", attempt)
		},
		OnError: func(err error) {
			log.Printf("❌ Stream error: %v", err)
		},
	})

	if *token != "" {
		subscribeAndPrint(client.TokenPrice(*token), "price", forwarder)
		subscribeAndPrint(client.TokenTransactions(*token), "trade", forwarder)
	}
	if *wallet != "" {
		subscribeAndPrint(client.WalletTransactions(*wallet), "wallet-trade", forwarder)
	}

	if err := client.Connect(context.Background()); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("🚀 Stream tool started successfully")
	log.Println("Press Ctrl+C to exit")

	<-sigChan
	log.Println("🛑 Received termination signal")

	client.Disconnect()
	log.Println("✅ Graceful shutdown completed")
}

// runHistory fetches the token's full trade history over REST, aggregates
// it in chunks and caches the snapshot when Redis is configured.
func runHistory(cfg config.Config, apiURL, token string) {
	ctx := context.Background()

	events, err := rest.NewEventsClient(apiURL, cfg.APIKey).TokenEvents(ctx, token)
	if err != nil {
		log.Fatalf("failed to fetch events: %v", err)
	}
	log.Printf("📥 Fetched %d trade events", len(events))

	calc, err := aggregation.NewCalculator(models.DefaultTimeWindows())
	if err != nil {
		log.Fatalf("failed to create calculator: %v", err)
	}

	currentPrice := 0.0
	if len(events) > 0 {
		currentPrice = events[len(events)-1].PriceUsd
	}

	stats, err := calc.AggregateChunked(ctx, events, currentPrice, aggregation.ChunkOptions{
		ChunkSize: cfg.ChunkSize,
		OnProgress: func(fraction float64) {
			log.Printf("📊 Aggregating: %.0f%%", fraction*100)
		},
	})
	if err != nil {
		log.Fatalf("aggregation failed: %v", err)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		log.Fatalf("failed to render stats: %v", err)
	}
	log.Printf("📈 Windowed stats for %s:\n%s", token, out)

	if cfg.RedisAddr != "" {
		statsCache := cache.NewStatsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StatsTTL)
		defer statsCache.Close()
		if err := statsCache.Put(ctx, token, stats); err != nil {
			log.Printf("failed to cache stats: %v", err)
		} else {
			log.Println("💾 Stats snapshot cached")
		}
	}
}

func subscribeAndPrint(sub *stream.Subscription, label string, forwarder *sink.TradeForwarder) {
	room := sub.Room()
	_, err := sub.On(func(data json.RawMessage) {
		log.Printf("[%s] %s: %s", label, room, string(data))
		if forwarder != nil {
			if err := forwarder.ForwardRaw(context.Background(), room, data); err != nil {
				log.Printf("forward failed: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe %s: %v", room, err)
	}
}
