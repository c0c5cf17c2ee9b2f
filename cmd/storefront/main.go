package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shadowdestructor/storefront/internal/cart"
	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/httpapi"
	"github.com/shadowdestructor/storefront/internal/notify"
	"github.com/shadowdestructor/storefront/internal/order"
	"github.com/shadowdestructor/storefront/internal/outbox"
	"github.com/shadowdestructor/storefront/internal/payment"
)

type Config struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"storefront"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"storefront"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"storefront"`
	MigrationsDir    string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	MongoURI string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB  string `envconfig:"MONGO_DB" default:"storefront"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`

	PaymentAPIURL        string `envconfig:"PAYMENT_API_URL" default:"https://api.stripe.com"`
	PaymentAPIKey        string `envconfig:"PAYMENT_API_KEY" required:"true"`
	PaymentWebhookSecret string `envconfig:"PAYMENT_WEBHOOK_SECRET" required:"true"`
	Currency             string `envconfig:"CURRENCY" default:"usd"`

	SMTPHost           string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort           int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername       string `envconfig:"SMTP_USERNAME" default:""`
	SMTPPassword       string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom           string `envconfig:"SMTP_FROM" default:"noreply@storefront.local"`
	LowStockRecipients string `envconfig:"LOW_STOCK_RECIPIENTS" default:""`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres holds orders, inventory and the outbox.
	pgCred := &order.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsDir,
	}
	orderRepo, err := order.NewPostgresRepository(pgCred)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := orderRepo.RunMigrations(pgCred); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Mongo holds carts.
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}()
	mongoDB := mongoClient.Database(cfg.MongoDB)
	if err := cart.CreateIndexes(ctx, mongoDB); err != nil {
		log.Fatalf("failed to create cart indexes: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	catalogStore := catalog.NewPostgresStore(orderRepo.DB())
	cartService := cart.NewService(cart.NewMongoRepository(mongoDB), cart.NewRedisCache(redisClient), catalogStore)

	var lowStockRecipients []string
	if cfg.LowStockRecipients != "" {
		lowStockRecipients = strings.Split(cfg.LowStockRecipients, ",")
	}
	sender := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	dispatcher := notify.NewDispatcher(sender, lowStockRecipients)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	orderService := order.NewService(orderRepo, cartService, catalogStore, dispatcher)

	gateway := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey)
	verifier := payment.NewWebhookVerifier(cfg.PaymentWebhookSecret)

	// Outbox poller relays order events to Kafka.
	poller := outbox.NewPoller(outbox.NewRepository(orderRepo.DB()), strings.Split(cfg.KafkaBrokers, ",")...)
	go poller.Run(ctx)

	router := httpapi.NewRouter(httpapi.Handlers{
		Cart:     httpapi.NewCartHandler(cartService, cfg.RequestTimeout),
		Checkout: httpapi.NewCheckoutHandler(orderService, gateway, cfg.Currency, cfg.RequestTimeout),
		Orders:   httpapi.NewOrdersHandler(orderService, cfg.RequestTimeout),
		Webhooks: httpapi.NewWebhookHandler(orderService, verifier, cfg.RequestTimeout),
	}, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("storefront starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
