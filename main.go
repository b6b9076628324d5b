package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/clients"
	apperrors "checkout-service/common/errors"
	"checkout-service/common/logger"
	commonmw "checkout-service/common/middleware"
	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/gateway"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/pricing"
	"checkout-service/repository"
	"checkout-service/routes"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Initialize(os.Getenv("ENV")).Fatal("Failed to load config", zap.Error(err))
	}
	log := logger.Initialize(cfg.Environment)
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(ctx, cfg.PostgresDSN(), log, &models.CheckoutAttempt{})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close() //nolint:errcheck

	// AWS clients
	var (
		snsClient aws_pkg.SNSPublisher
		queue     aws_pkg.SQSSender
		metrics   aws_pkg.MetricsRecorder
	)
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)
	if awsErr != nil {
		log.Warn("AWS config unavailable, SNS, SQS and metrics disabled", zap.Error(awsErr))
	} else {
		snsClient = aws_pkg.NewSNSClient(awsCfg)
		if cfg.ReconciliationQueueURL != "" {
			queue = aws_pkg.NewSQSQueue(awsCfg, cfg.ReconciliationQueueURL)
		} else {
			log.Warn("RECONCILIATION_QUEUE_URL not set, reconciliation hand-off disabled")
		}
		metrics = aws_pkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.MetricsEnabled)
	}

	// Upstreams
	httpClient := &http.Client{}
	orderSC := clients.NewServiceClient("order-service", cfg.OrderServiceURL, httpClient)
	couponSC := clients.NewServiceClient("promotion-service", cfg.PromotionServiceURL, httpClient)
	walletSC := clients.NewServiceClient("wallet-service", cfg.WalletServiceURL, httpClient)
	orderStore := clients.NewOrderStoreClient(orderSC)
	couponSvc := clients.NewCouponServiceClient(couponSC)
	wallet := clients.NewWalletClient(walletSC)
	stripeGW := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:  cfg.StripeSecretKey,
		WebhookKey: cfg.StripeWebhookKey,
		APIURL:     cfg.StripeAPIURL,
		HTTPClient: httpClient,
	})

	// DI chain
	retry := cfg.Retry()
	tables := pricing.DefaultTables()
	tables.Currency = cfg.Currency
	attempts := repository.NewGormAttemptRepository(db)
	reconciler := services.NewReconciler(attempts, queue, log)

	orchestrator := services.NewOrchestrator(services.Dependencies{
		Coupons:    services.NewCouponValidator(couponSvc, retry, log, metrics),
		Wallet:     wallet,
		Pricing:    pricing.NewEngine(tables),
		Ledger:     services.NewOrderLedger(orderStore, retry, log, metrics),
		Payments:   services.NewPaymentProtocol(stripeGW, retry, cfg.ConfirmAttemptTimeout, log, metrics),
		Attempts:   attempts,
		Guard:      repository.NewAttemptGuard(rdb, cfg.AttemptLockTTL),
		Carts:      repository.NewCartStore(rdb),
		Notifier:   services.NewSNSNotifier(snsClient, cfg.CheckoutSNSTopicARN, log),
		Reconciler: reconciler,
		Metrics:    metrics,
		Logger:     log,
	}, services.OrchestratorConfig{
		Currency:            cfg.Currency,
		PendingOrderTTL:     cfg.PendingOrderTTL,
		ConfirmationBaseURL: cfg.ConfirmationBaseURL,
		Retry:               retry,
	})

	if queue != nil {
		go reconciler.Run(ctx, cfg.ReconcileInterval)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestLogger(log))
	r.Use(commonmw.Metrics(metrics, "checkout-service"))
	r.Use(commonmw.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())

	placeLimiter := commonmw.NewRateLimiter(rate.Limit(float64(cfg.PlaceOrderPerMinute)/60), cfg.PlaceOrderBurst, 10*time.Minute)
	routes.RegisterRoutes(r,
		controllers.NewCheckoutController(orchestrator, log),
		controllers.NewWebhookController(stripeGW, orchestrator, log),
		controllers.NewHealthController(map[string]controllers.Check{
			"postgres":          database.PingPostgres(db),
			"redis":             database.PingRedis(rdb),
			"order-service":     orderSC.Healthy,
			"promotion-service": couponSC.Healthy,
			"wallet-service":    walletSC.Healthy,
		}),
		placeLimiter,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Checkout service started", zap.String("port", cfg.Port))
	<-ctx.Done()
	log.Info("Shutting down checkout service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited cleanly")
}
