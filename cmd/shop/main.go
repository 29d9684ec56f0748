package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/cache"
	"github.com/joao-fontenele/shopflow/internal/cart"
	"github.com/joao-fontenele/shopflow/internal/catalog"
	"github.com/joao-fontenele/shopflow/internal/config"
	"github.com/joao-fontenele/shopflow/internal/messaging"
	"github.com/joao-fontenele/shopflow/internal/orders"
	"github.com/joao-fontenele/shopflow/internal/stats"
	"github.com/joao-fontenele/shopflow/internal/telemetry"
)

const serviceName = "shop"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL, cfg.DBSchema)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	orderOpts := []orders.Option{
		orders.WithPricing(orders.Pricing{TaxRate: cfg.TaxRate, ShippingFee: cfg.ShippingFee}),
		orders.WithStrictTransitions(cfg.StrictTransitions),
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		orderOpts = append(orderOpts, orders.WithPublisher(producer))
	} else {
		logger.Info("KAFKA_BROKERS not set, order events are not published")
	}

	var statsCache cache.Cache
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, serviceName)
		defer func() { _ = redisCache.Close() }()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, statistics will be computed on every request until it recovers", "error", err)
		}
		cancel()
		statsCache = redisCache
	}

	products := catalog.NewProductStore(db)
	catalogHandler := catalog.NewHandler(products, logger)
	cartHandler := cart.NewHandler(cart.NewCartRepository(db), products, logger)
	orderService := orders.NewService(orders.NewOrderRepository(db), logger, orderOpts...)
	orderHandler := orders.NewHandler(orderService, logger)
	statsHandler := stats.NewHandler(stats.NewService(stats.NewStatsRepository(db), statsCache, cfg.StatsCacheTTL, logger), logger)

	authed := func(h http.HandlerFunc, roles ...auth.Role) http.Handler {
		return auth.Middleware(cfg.JWTSecret, logger, roles...)(telemetry.WithHTTPRoute(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /products/{id}", telemetry.WithHTTPRoute(http.HandlerFunc(catalogHandler.HandleGetProduct)))

	mux.Handle("GET /cart", authed(cartHandler.HandleList, auth.RoleCustomer))
	mux.Handle("DELETE /cart", authed(cartHandler.HandleClear, auth.RoleCustomer))
	mux.Handle("POST /cart/items", authed(cartHandler.HandleAdd, auth.RoleCustomer))
	mux.Handle("PUT /cart/items/{productId}", authed(cartHandler.HandleUpdate, auth.RoleCustomer))
	mux.Handle("DELETE /cart/items/{productId}", authed(cartHandler.HandleRemove, auth.RoleCustomer))

	mux.Handle("POST /orders", authed(orderHandler.HandlePlace, auth.RoleCustomer))
	mux.Handle("GET /orders", authed(orderHandler.HandleListMine))
	mux.Handle("GET /orders/{id}", authed(orderHandler.HandleGet))
	mux.Handle("POST /orders/{id}/cancel", authed(orderHandler.HandleCancel, auth.RoleCustomer))

	mux.Handle("GET /admin/orders", authed(orderHandler.HandleListAll, auth.RoleAdmin))
	mux.Handle("GET /admin/statistics", authed(statsHandler.HandleStatistics, auth.RoleAdmin))
	mux.Handle("PUT /admin/orders/{id}/status", authed(orderHandler.HandleSetStatus, auth.RoleAdmin))
	mux.Handle("PUT /admin/orders/{id}/payment-status", authed(orderHandler.HandleSetPaymentStatus, auth.RoleAdmin))

	mux.Handle("GET /seller/orders", authed(orderHandler.HandleSellerItems, auth.RoleSeller))
	mux.Handle("PUT /seller/orders/{id}/fulfillment-status", authed(orderHandler.HandleSetFulfillment, auth.RoleSeller, auth.RoleAdmin))
	mux.Handle("POST /seller/products", authed(catalogHandler.HandleCreateProduct, auth.RoleSeller, auth.RoleAdmin))
	mux.Handle("PATCH /seller/products/{id}", authed(catalogHandler.HandleUpdateProduct, auth.RoleSeller, auth.RoleAdmin))
	mux.Handle("GET /seller/dashboard", authed(statsHandler.HandleSellerDashboard, auth.RoleSeller))
	mux.Handle("GET /seller/inventory/alerts", authed(catalogHandler.HandleStockAlerts, auth.RoleSeller))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", healthz(db))

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting shop service", "port", cfg.Port, "schema", cfg.DBSchema)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
