// Command bench-runner drives load against the shop-api checkout flow and
// reports latency percentiles. Scenarios:
//
//	checkout — POST /order/checkout/session with a fixed cart
//	webhook  — POST /order/webhook with signed completed-session events
//	recent   — GET /order/recent/{customer_id}
//
// The webhook scenario needs the same PAYMENT_WEBHOOK_SECRET as the server
// and a checkout_ref of an existing pending checkout; with -reuse-session
// every event carries the same session id, which turns the run into an
// idempotency probe (exactly one order should materialize).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nazeru/shop-backend-go/pkg/payment"
)

type benchResult struct {
	Timestamp          string         `json:"timestamp"`
	BaseURL            string         `json:"base_url"`
	Scenario           string         `json:"scenario"`
	Requests           int            `json:"requests"`
	Concurrency        int            `json:"concurrency"`
	SuccessfulRequests int            `json:"successful_requests"`
	ErrorRequests      int            `json:"error_requests"`
	DurationSeconds    float64        `json:"duration_seconds"`
	AvgLatencyMs       float64        `json:"avg_latency_ms"`
	MinLatencyMs       float64        `json:"min_latency_ms"`
	MaxLatencyMs       float64        `json:"max_latency_ms"`
	P50LatencyMs       float64        `json:"p50_latency_ms"`
	P90LatencyMs       float64        `json:"p90_latency_ms"`
	P95LatencyMs       float64        `json:"p95_latency_ms"`
	P99LatencyMs       float64        `json:"p99_latency_ms"`
	ThroughputRPS      float64        `json:"throughput_rps"`
	StatusCounts       map[string]int `json:"status_counts"`
	FirstError         string         `json:"first_error"`
}

type benchMetrics struct {
	mu           sync.Mutex
	success      int
	errors       int
	total        time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	latenciesMs  []float64
	statusCounts map[string]int
	firstError   string
}

func newMetrics() *benchMetrics {
	return &benchMetrics{statusCounts: make(map[string]int)}
}

func (m *benchMetrics) record(latency time.Duration, status int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCounts[strconv.Itoa(status)]++
	if err != nil {
		m.errors++
		if m.firstError == "" {
			m.firstError = err.Error()
		}
		return
	}
	m.success++
	m.total += latency
	if m.minLatency == 0 || latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
	m.latenciesMs = append(m.latenciesMs, float64(latency.Milliseconds()))
}

type request struct {
	method string
	url    string
	body   func() ([]byte, http.Header)
}

func main() {
	baseURL := flag.String("base-url", getenv("SHOP_BASE_URL", "http://localhost:8080"), "shop-api base URL")
	scenario := flag.String("scenario", "checkout", "scenario to run: checkout|webhook|recent")
	total := flag.Int("total", 1000, "total number of requests")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	customerEmail := flag.String("customer-email", "bench@example.com", "customer email for checkout and webhook events")
	customerID := flag.String("customer-id", "bench-customer", "customer id for the recent scenario")
	addressID := flag.Int64("address-id", 1, "shipping address id")
	productID := flag.Int64("product-id", 1, "product id placed in the cart")
	quantity := flag.Int("quantity", 1, "cart quantity")
	webhookSecret := flag.String("webhook-secret", getenv("PAYMENT_WEBHOOK_SECRET", ""), "webhook signing secret")
	checkoutRef := flag.String("checkout-ref", "", "pending checkout ref for the webhook scenario")
	reuseSession := flag.Bool("reuse-session", false, "send every webhook event with the same session id")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *total <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "total and concurrency must be > 0")
		os.Exit(1)
	}

	build, err := buildRequest(*scenario, *baseURL, *customerEmail, *customerID, *addressID, *productID, *quantity, *webhookSecret, *checkoutRef, *reuseSession)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	tasks := make(chan struct{})
	var wg sync.WaitGroup
	m := newMetrics()
	client := &http.Client{}

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range tasks {
				latency, status, err := doRequest(client, build, *timeout)
				m.record(latency, status, err)
			}
		}()
	}

	for i := 0; i < *total; i++ {
		tasks <- struct{}{}
	}
	close(tasks)
	wg.Wait()

	duration := time.Since(start)
	avgLatency, minLatency, maxLatency := 0.0, 0.0, 0.0
	if m.success > 0 {
		avgLatency = float64(m.total.Milliseconds()) / float64(m.success)
		minLatency = float64(m.minLatency.Milliseconds())
		maxLatency = float64(m.maxLatency.Milliseconds())
	}
	p50, p90, p95, p99 := calcPercentiles(m.latenciesMs)

	result := benchResult{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		BaseURL:            *baseURL,
		Scenario:           *scenario,
		Requests:           *total,
		Concurrency:        *concurrency,
		SuccessfulRequests: m.success,
		ErrorRequests:      m.errors,
		DurationSeconds:    duration.Seconds(),
		AvgLatencyMs:       avgLatency,
		MinLatencyMs:       minLatency,
		MaxLatencyMs:       maxLatency,
		P50LatencyMs:       p50,
		P90LatencyMs:       p90,
		P95LatencyMs:       p95,
		P99LatencyMs:       p99,
		ThroughputRPS:      float64(m.success) / duration.Seconds(),
		StatusCounts:       m.statusCounts,
		FirstError:         m.firstError,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		data, _ := json.MarshalIndent(result, "", "  ")
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}
}

func buildRequest(scenario, baseURL, customerEmail, customerID string, addressID, productID int64, quantity int, webhookSecret, checkoutRef string, reuseSession bool) (request, error) {
	base := strings.TrimRight(baseURL, "/")
	switch scenario {
	case "checkout":
		return request{
			method: http.MethodPost,
			url:    base + "/order/checkout/session",
			body: func() ([]byte, http.Header) {
				payload := map[string]any{
					"customer_email": customerEmail,
					"address_id":     addressID,
					"cartItems":      []map[string]any{{"product_id": productID, "quantity": quantity}},
				}
				data, _ := json.Marshal(payload)
				h := http.Header{}
				h.Set("Content-Type", "application/json")
				h.Set("Idempotency-Key", uuid.NewString())
				return data, h
			},
		}, nil
	case "webhook":
		if webhookSecret == "" || checkoutRef == "" {
			return request{}, fmt.Errorf("webhook scenario requires -webhook-secret and -checkout-ref")
		}
		fixedSession := "cs_bench_" + uuid.NewString()
		return request{
			method: http.MethodPost,
			url:    base + "/order/webhook",
			body: func() ([]byte, http.Header) {
				sessionID := fixedSession
				if !reuseSession {
					sessionID = "cs_bench_" + uuid.NewString()
				}
				event := map[string]any{
					"id":   "evt_" + uuid.NewString(),
					"type": payment.EventCheckoutSessionCompleted,
					"data": map[string]any{"object": map[string]any{
						"id":             sessionID,
						"customer_email": customerEmail,
						"amount_total":   0,
						"metadata":       map[string]string{"checkout_ref": checkoutRef},
					}},
				}
				data, _ := json.Marshal(event)
				h := http.Header{}
				h.Set("Content-Type", "application/json")
				h.Set(payment.SignatureHeader, payment.Sign(data, webhookSecret, time.Now()))
				return data, h
			},
		}, nil
	case "recent":
		return request{
			method: http.MethodGet,
			url:    base + "/order/recent/" + customerID,
			body:   func() ([]byte, http.Header) { return nil, http.Header{} },
		}, nil
	default:
		return request{}, fmt.Errorf("unknown scenario: %s", scenario)
	}
}

func doRequest(client *http.Client, build request, timeout time.Duration) (time.Duration, int, error) {
	data, headers := build.body()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, build.method, build.url, reader)
	if err != nil {
		return 0, 0, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latency, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return latency, resp.StatusCode, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func calcPercentiles(values []float64) (float64, float64, float64, float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.50), percentile(values, 0.90), percentile(values, 0.95), percentile(values, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
