package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/bulkimport"
	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/compare"
	"github.com/ariefcatur/go-pharmacy-store/internal/config"
	"github.com/ariefcatur/go-pharmacy-store/internal/httpx"
	kafkax "github.com/ariefcatur/go-pharmacy-store/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-store/internal/logging"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/ariefcatur/go-pharmacy-store/internal/redisx"
	"github.com/ariefcatur/go-pharmacy-store/internal/reviews"
	"github.com/ariefcatur/go-pharmacy-store/internal/wishlist"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.ServiceName, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, satu per topic
	placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	reviewed := kafkax.NewProducer(cfg.KafkaBrokers, prescription.TopicReviewed, 256)
	producers := []*kafkax.Producer{placed, changed, reviewed}
	for _, p := range producers {
		p.Start()
	}

	pricing := orders.Pricing{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		Currency:              cfg.Currency,
	}

	products := catalog.NewCachedRepository(catalog.NewPostgresRepository(db), rdb)
	rxRepo := prescription.NewPostgresRepository(db)
	gate := prescription.NewGate(rxRepo)
	rxSvc := prescription.NewService(rxRepo, prescription.NewDiskStore(cfg.UploadDir), reviewed, cfg.ServiceName, cfg.MaxUploadBytes)
	carts := cart.NewService(cart.NewPostgresStore(db), products, gate)
	orderSvc := orders.NewService(orders.Deps{
		Repo:          orders.NewRepo(db, pricing),
		Gate:          gate,
		Pricing:       pricing,
		Redis:         rdb,
		Placed:        placed,
		StatusChanged: changed,
		Producer:      cfg.ServiceName,
		Stock:         products,
	})

	router := httpx.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		(&httpx.CatalogHandler{Products: products}).Register(r)
		(&httpx.CartHandler{Carts: carts, Quotes: orderSvc}).Register(r)
		(&httpx.OrdersHandler{Orders: orderSvc, Carts: carts}).Register(r)
		(&httpx.PrescriptionsHandler{Prescriptions: rxSvc, MaxBytes: cfg.MaxUploadBytes}).Register(r)
		(&httpx.BulkImportHandler{Resolver: bulkimport.NewResolver(products), Carts: carts, Quotes: orderSvc}).Register(r)
		(&httpx.WishlistHandler{Wishlists: wishlist.NewService(wishlist.NewPostgresRepository(db))}).Register(r)
		(&httpx.CompareHandler{Compare: compare.NewService(compare.NewRedisStore(rdb), products)}).Register(r)
		(&httpx.ReviewsHandler{Reviews: reviews.NewService(reviews.NewPostgresRepository(db))}).Register(r)
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		// request yang masih jalan bisa Publish setelah Close; pesannya di-drop
		log.Warn().Err(err).Msg("http shutdown")
	}
	for _, p := range producers {
		p.Close() // tutup inbox -> flush & close writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
