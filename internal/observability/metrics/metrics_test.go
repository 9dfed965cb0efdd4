package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(walletConnects.WithLabelValues("USER_REJECTED"))
	ObserveWalletConnect("USER_REJECTED")
	if got := testutil.ToFloat64(walletConnects.WithLabelValues("USER_REJECTED")); got != before+1 {
		t.Fatalf("expected counter to increase, got %v", got)
	}

	ObserveContractInvocation("call", "ok")
	ObserveReceipt("succeeded")
	ObserveHTTPRequest("/api/v1/wallet/connect", http.MethodPost, 200, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"walletbridge_wallet_connect_total",
		"walletbridge_contract_invocations_total",
		"walletbridge_receipts_tracked_total",
		"walletbridge_http_request_duration_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}
