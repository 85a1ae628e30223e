package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/casafolio/billhook/db"
	"github.com/casafolio/billhook/external"
	"github.com/casafolio/billhook/profile"
	"github.com/casafolio/billhook/property"
	"github.com/casafolio/billhook/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: env,
		Debug:       "production" != env,
	}); err != nil {
		log.Fatalf("Cannot initialize sentry: %v\n", err)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		log.Fatalf("Cannot initialize zapsentry: %v\n", err)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	stripeClient := external.NewStripeClient(os.Getenv("STRIPE_KEY"))

	gormDB, err := db.New(db.Options{
		URI:    os.Getenv("POSTGRES_URI"),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	profileManager, err := profile.NewManager(profile.ManagerOptions{
		DB:     gormDB,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize ProfileManager",
			zap.Error(err),
		)
	}

	propertyManager, err := property.NewManager(property.ManagerOptions{
		DB:     gormDB,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize PropertyManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:     gormDB,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	tierMapper, err := subscription.NewTierMapper(subscription.TierMapperOptions{
		Mapping: tierMappingFromEnv(),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize TierMapper",
			zap.Error(err),
		)
	}

	verifier, err := subscription.NewVerifier(os.Getenv("STRIPE_WEBHOOK_SECRET"))
	if err != nil {
		logger.Fatal("Cannot initialize webhook Verifier",
			zap.Error(err),
		)
	}

	dispatcher, err := subscription.NewDispatcher(subscription.DispatcherOptions{
		Subscriptions: subscriptionManager,
		Properties:    propertyManager,
		Profiles:      profileManager,
		Stripe:        subscription.NewStripeFetcher(stripeClient),
		Tiers:         tierMapper,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize webhook Dispatcher",
			zap.Error(err),
		)
	}

	webhookService, err := subscription.NewService(subscription.ServiceOptions{
		Verifier:      verifier,
		Dispatcher:    dispatcher,
		Subscriptions: subscriptionManager,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Webhook Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	rootRouter.Mount("/", webhookService.Router())

	addr := os.Getenv("LISTEN_ADDR")
	if len(addr) == 0 {
		addr = ":8080"
	}
	srv := &http.Server{
		Handler: rootRouter,
		Addr:    addr,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Cannot start API server",
				zap.Error(err),
			)
		}
	}()

	logger.Info("Webhook API started",
		zap.String("Addr", addr),
	)

	<-c

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Unable to shutdown API server gracefully",
			zap.Error(err),
		)
	}
}

// tierMappingFromEnv reads the comma-separated reference price IDs per tier.
// Monthly and yearly price IDs for the same tier simply both appear in the
// list.
func tierMappingFromEnv() map[string]subscription.Tier {
	mapping := make(map[string]subscription.Tier)
	appendPrices := func(envKey string, tier subscription.Tier) {
		for _, priceID := range strings.Split(os.Getenv(envKey), ",") {
			priceID = strings.TrimSpace(priceID)
			if len(priceID) > 0 {
				mapping[priceID] = tier
			}
		}
	}
	appendPrices("STRIPE_BASIC_PRICE_IDS", subscription.TierBasic)
	appendPrices("STRIPE_PREMIUM_PRICE_IDS", subscription.TierPremium)
	appendPrices("STRIPE_CONNECTED_PRICE_IDS", subscription.TierConnected)
	return mapping
}
