package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/ticketing-core/internal/clock"
	"github.com/iliyamo/ticketing-core/internal/config"
	"github.com/iliyamo/ticketing-core/internal/handler"
	"github.com/iliyamo/ticketing-core/internal/lock"
	"github.com/iliyamo/ticketing-core/internal/middleware"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/obs"
	"github.com/iliyamo/ticketing-core/internal/payment"
	"github.com/iliyamo/ticketing-core/internal/queue"
	"github.com/iliyamo/ticketing-core/internal/router"
	"github.com/iliyamo/ticketing-core/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting, seat cache and sweep lock disabled")
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
		defer pub.Close()
		events = pub
	}

	gateways, err := newRegistry(cfg)
	if err != nil {
		log.Fatalf("gateways: %v", err)
	}
	retry := payment.RetryPolicy{
		MaxAttempts:     cfg.GatewayMaxAttempts,
		InitialInterval: cfg.GatewayInitialBackoff,
		MaxInterval:     cfg.GatewayMaxBackoff,
		CallTimeout:     cfg.GatewayTimeout,
	}

	clk := clock.NewSystem()
	holds := service.NewHoldService(st.tx, st.ledger, st.sessions, st.seats, st.holds, clk,
		service.WithHoldTTL(cfg.HoldTTL),
		service.WithMaxHoldSeats(cfg.HoldMaxSeats),
		service.WithHoldEvents(events))
	orders := service.NewOrderService(st.tx, st.ledger, st.sessions, st.seats, st.holds, st.orders, st.payments, clk,
		service.WithFeePolicy(service.FeePolicy{PercentBps: cfg.ServiceFeeBps, PerTicketCents: cfg.ServiceFeePerTicketCents}),
		service.WithOrderEvents(events))
	payments := service.NewPaymentService(st.tx, st.orders, st.payments, gateways, clk,
		service.WithRetryPolicy(retry),
		service.WithPaymentEvents(events))
	refunds := service.NewRefundService(st.tx, st.orders, st.payments, st.refunds, gateways, clk,
		service.WithRefundRetryPolicy(retry),
		service.WithRefundEvents(events))

	sweepOpts := []service.SweeperOption{
		service.WithSweepInterval(cfg.SweepInterval),
		service.WithPaymentWindow(cfg.PaymentWindow),
		service.WithSweepBatch(cfg.SweepBatchSize),
		service.WithSweepSessions(st.sessions),
		service.WithSweepEvents(events),
	}
	if rdb != nil {
		sweepOpts = append(sweepOpts, service.WithSweepLock(lock.NewRedisLock(rdb, uuid.NewString())))
	}
	sweeper := service.NewSweeper(st.tx, st.ledger, st.holds, st.orders, st.payments, clk, sweepOpts...)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatalf("rate limit config: %v", err)
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.Fatalf("cache config: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Printf("[http] method=%s uri=%s status=%d latency=%s ip=%s tenant=%s err=%v",
				v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, middleware.TenantID(c), v.Error)
			return nil
		},
	}))

	router.RegisterRoutes(e, st.ping)
	router.RegisterCheckout(e, handler.NewCheckoutHandler(holds, orders, payments, refunds), router.CheckoutOptions{
		JWTSecret:   cfg.JWTSecret,
		HoldLimiter: middleware.NewTokenBucket(rlCfg, rdb),
		SeatCache:   middleware.NewRedisCache(cacheCfg, rdb),
	})

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s store=%s gateways=%v)", addr, cfg.Env, cfg.StoreDriver, gateways.Codes())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	<-sweepDone
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("tracer shutdown: %v", err)
	}
}

// newRegistry registers the sandbox provider and, with credentials, Omise.
func newRegistry(cfg config.Config) (*payment.Registry, error) {
	reg := payment.NewRegistry()
	reg.Register("sandbox", payment.NewSandbox())
	if cfg.OmiseSecretKey != "" {
		om, err := payment.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return nil, err
		}
		reg.Register("omise", om)
	}
	for method, code := range map[model.PaymentMethod]string{
		model.MethodPIX:        cfg.DefaultGatewayPix,
		model.MethodCreditCard: cfg.DefaultGatewayCard,
		model.MethodDebitCard:  cfg.DefaultGatewayCard,
	} {
		if _, err := reg.Lookup(code); err != nil {
			return nil, err
		}
		reg.SetDefault(method, code)
	}
	return reg, nil
}
