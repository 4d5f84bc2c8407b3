// Command shop-api starts the storefront HTTP service: catalog, customers,
// reviews and the payment-checkout flow against a single Postgres database.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/shop-backend-go/internal/api"
	"github.com/nazeru/shop-backend-go/internal/catalog"
	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/customer"
	"github.com/nazeru/shop-backend-go/internal/db"
	"github.com/nazeru/shop-backend-go/internal/order"
	"github.com/nazeru/shop-backend-go/internal/review"
	"github.com/nazeru/shop-backend-go/pkg/kafka"
	"github.com/nazeru/shop-backend-go/pkg/metrics"
	"github.com/nazeru/shop-backend-go/pkg/outbox"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

type cfg struct {
	Port            string
	DatabaseURL     string
	PaymentBaseURL  string
	PaymentSecret   string
	WebhookSecret   string
	RedirectBaseURL string
	RequestTimeout  time.Duration
	KafkaBrokers    string
	KafkaTopic      string
}

func readCfg() (cfg, error) {
	port := getenv("PORT", "8080")
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return cfg{}, errors.New("DATABASE_URL is required")
	}
	paymentSecret := strings.TrimSpace(os.Getenv("PAYMENT_SECRET_KEY"))
	if paymentSecret == "" {
		return cfg{}, errors.New("PAYMENT_SECRET_KEY is required")
	}
	webhookSecret := strings.TrimSpace(os.Getenv("PAYMENT_WEBHOOK_SECRET"))
	if webhookSecret == "" {
		return cfg{}, errors.New("PAYMENT_WEBHOOK_SECRET is required")
	}
	toutMS, _ := strconv.Atoi(getenv("REQUEST_TIMEOUT_MS", "2500"))

	return cfg{
		Port:            port,
		DatabaseURL:     dbURL,
		PaymentBaseURL:  strings.TrimRight(getenv("PAYMENT_BASE_URL", "https://api.payment.example.com"), "/"),
		PaymentSecret:   paymentSecret,
		WebhookSecret:   webhookSecret,
		RedirectBaseURL: strings.TrimRight(getenv("CHECKOUT_REDIRECT_BASE_URL", "http://localhost:3000"), "/"),
		RequestTimeout:  time.Duration(toutMS) * time.Millisecond,
		KafkaBrokers:    getenv("KAFKA_BROKERS", ""),
		KafkaTopic:      getenv("KAFKA_TOPIC", "shop.events"),
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	catalogStore := catalog.NewStore(pool)
	customerStore := customer.NewStore(pool)
	reviewStore := review.NewStore(pool)
	pendingStore := checkout.NewPendingStore(pool)
	orderStore := order.NewStore(pool, cfg.KafkaTopic)

	processor := payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentSecret, cfg.RequestTimeout)
	checkoutSvc := checkout.NewService(catalogStore, customerStore, processor, pendingStore, cfg.RedirectBaseURL)
	orderSvc := order.NewService(customerStore, pendingStore, orderStore, orderStore, cfg.WebhookSecret)

	srvMetrics := metrics.NewServerMetrics("shop_api")

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if kafkaClient.Enabled() {
		go outbox.Relay(context.Background(), pool, kafkaClient, cfg.KafkaTopic, 2*time.Second)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"db_error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	api.New(checkoutSvc, orderSvc, customerStore, catalogStore, reviewStore, srvMetrics).Register(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("shop-api listening on :%s (kafka=%v)", cfg.Port, kafkaClient.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
