package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pharmacy-store/internal/config"
	"github.com/ariefcatur/go-pharmacy-store/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-pharmacy-store/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-store/internal/logging"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/ariefcatur/go-pharmacy-store/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-fulfillment"
	logging.Setup(cfg.LogLevel, name, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderFulfillment, 1024)
	prod.Start()

	svc := &fulfillment.Service{
		Orders:      orders.NewRepo(db, orders.DefaultPricing()),
		Gate:        prescription.NewGate(prescription.NewPostgresRepository(db)),
		Dedup:       &redisx.Deduper{RDB: rdb, Service: "fulfillment"},
		Producer:    prod,
		ServiceName: name,
	}

	// dua consumer, satu group: order baru & hasil review resep
	g, gctx := errgroup.WithContext(ctx)
	consumers := []struct {
		topic string
		h     kafkax.Handler
	}{
		{orders.TopicOrderPlaced, svc.HandleOrderPlaced},
		{prescription.TopicReviewed, svc.HandlePrescriptionReviewed},
	}
	for _, c := range consumers {
		c := c
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FulfillmentGroup, c.topic, cfg.FulfillmentWorkers)
		log.Info().Str("group", cfg.FulfillmentGroup).Str("topic", c.topic).Int("workers", cfg.FulfillmentWorkers).Msg("fulfillment consumer started")
		g.Go(func() error { return cons.Start(gctx, c.h) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("consumer exit")
	}
	log.Info().Msg("shutting down consumer...")
	prod.Close()
	prod.WaitClosed()
}
