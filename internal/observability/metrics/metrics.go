package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletbridge",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests handled.",
	}, []string{"handler", "method", "code"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletbridge",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	walletConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletbridge",
		Name:      "wallet_connect_total",
		Help:      "Wallet connection attempts by outcome code.",
	}, []string{"outcome"})

	contractInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletbridge",
		Name:      "contract_invocations_total",
		Help:      "Contract invocations by kind and outcome code.",
	}, []string{"kind", "outcome"})

	receiptsTracked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletbridge",
		Name:      "receipts_tracked_total",
		Help:      "Transactions resolved by the receipt tracker.",
	}, []string{"status"})
)

func init() {
	registry.MustRegister(httpRequests, httpLatency, walletConnects, contractInvocations, receiptsTracked)
	registry.MustRegister(prometheus.NewGoCollector())
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveWalletConnect counts a connect attempt; outcome is "ok" or an error code.
func ObserveWalletConnect(outcome string) {
	walletConnects.WithLabelValues(outcome).Inc()
}

// ObserveContractInvocation counts a call or transaction.
func ObserveContractInvocation(kind, outcome string) {
	contractInvocations.WithLabelValues(kind, outcome).Inc()
}

// ObserveReceipt counts a tracked transaction reaching a final status.
func ObserveReceipt(status string) {
	receiptsTracked.WithLabelValues(status).Inc()
}

// Registry exposes the collector registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
