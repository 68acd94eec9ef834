/**
 * @description
 * This is the main entry point for the payments-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * the payment gateway adapter, external API clients, message brokers, repositories,
 * the core application service, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for checkout rate limiting.
 * - github.com/shopspring/decimal: Fixed-point money arithmetic.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/gateway: Payment gateway adapters (Stripe, Culqi, Izipay).
 * - pkg/profilesclient, pkg/workordersclient, pkg/servicerequestsclient,
 *   pkg/notificationsclient: Clients for sibling services.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ositopolar/payments-service/internal/api"
	"github.com/ositopolar/payments-service/internal/app"
	"github.com/ositopolar/payments-service/internal/config"
	"github.com/ositopolar/payments-service/internal/store"
	"github.com/ositopolar/payments-service/pkg/gateway"
	"github.com/ositopolar/payments-service/pkg/notificationsclient"
	"github.com/ositopolar/payments-service/pkg/profilesclient"
	"github.com/ositopolar/payments-service/pkg/rabbitmq"
	"github.com/ositopolar/payments-service/pkg/servicerequestsclient"
	"github.com/ositopolar/payments-service/pkg/workordersclient"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payments-service\" port=%s provider=%s", cfg.ServerPort, cfg.PaymentProvider)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Pool sizing aligned with the other platform services.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the data access layer and make sure the schema and the plan
	// catalog exist before serving traffic.
	repository := store.NewPostgresRepository(dbpool)
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
	}
	cancelSchema()
	log.Println("level=info component=bootstrap msg=\"schema ready\"")

	// Initialize the RabbitMQ producer to publish payment events. A broker outage
	// at startup degrades to a no-op publisher rather than blocking the service.
	var eventProducer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the payment gateway adapter selected by configuration.
	paymentGateway, err := gateway.New(gateway.Config{
		Provider:         cfg.PaymentProvider,
		StripeSecretKey:  cfg.StripeSecretKey,
		StripeAPIBaseURL: cfg.StripeAPIBaseURL,
		CulqiSecretKey:   cfg.CulqiSecretKey,
		CulqiAPIBaseURL:  cfg.CulqiAPIBaseURL,
		IzipayShopID:     cfg.IzipayShopID,
		IzipayAPIKey:     cfg.IzipayAPIKey,
		IzipayAPIBaseURL: cfg.IzipayAPIBaseURL,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"payment gateway init failed\" err=%v", err)
	}

	// Initialize the clients for the sibling services.
	profilesClient := profilesclient.NewClient(cfg.ProfilesServiceURL, cfg.InternalAPIKey)
	workOrdersClient := workordersclient.NewClient(cfg.WorkOrdersServiceURL, cfg.InternalAPIKey)
	serviceRequestsClient := servicerequestsclient.NewClient(cfg.ServiceRequestsServiceURL, cfg.InternalAPIKey)
	notificationsClient := notificationsclient.NewClient(cfg.NotificationsServiceURL, cfg.InternalAPIKey)

	// Redis backs the checkout rate limiter. Missing or unreachable Redis disables
	// limiting instead of blocking startup.
	var rateLimiter app.CheckoutRateLimiter
	if cfg.CheckoutRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; checkout rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; checkout rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				pingErr := redisClient.Ping(pingCtx).Err()
				cancelPing()
				if pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; checkout rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					rateLimiter = app.NewRedisCheckoutRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the core application service with its dependencies.
	paymentService := app.NewService(
		repository,
		paymentGateway,
		profilesClient,
		workOrdersClient,
		serviceRequestsClient,
		notificationsClient,
		eventProducer,
		rateLimiter,
		decimal.NewFromFloat(cfg.PlatformFeePercent),
		cfg.PaymentCurrency,
		cfg.CheckoutRateLimitPerMinute,
		time.Minute,
	)

	// Initialize the API handlers and routes.
	paymentHandlers := api.NewPaymentHandlers(paymentService)
	router := api.PaymentRoutes(paymentHandlers, cfg.JWTSecret, cfg.AllowedOriginList())

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
