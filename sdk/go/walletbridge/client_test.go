package walletbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConnectPostsChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/wallet/connect" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Accounts{Chain: body["chain"], Connected: true, Accounts: []string{"0xabc"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	accounts, err := client.Connect(context.Background(), "sepolia")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if accounts.Chain != "sepolia" || !accounts.Connected || len(accounts.Accounts) != 1 {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
}

func TestListInvocationsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prefix/api/v1/invocations" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("limit") != "5" || q.Get("status") != "pending" || q.Get("chain") != "local" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode([]Invocation{{ID: "a"}, {ID: "b"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/prefix", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	list, err := client.ListInvocations(context.Background(), ListOptions{Limit: 5, Status: "pending", Chain: "local"})
	if err != nil {
		t.Fatalf("list invocations: %v", err)
	}
	if len(list) != 2 || list[1].ID != "b" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestInvocationStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/invocations/stats" || r.URL.Query().Get("chain") != "local" {
			t.Fatalf("unexpected request: %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"total":3,"pending":1,"succeeded":2}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	stats, err := client.InvocationStats(context.Background(), ListOptions{Chain: "local"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestExecuteErrorCarriesInvocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"EXECUTION_REVERTED","message":"transaction reverted"},"invocation":{"id":"inv-1","status":"reverted"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Execute(context.Background(), ExecuteRequest{Contract: "0x1", Method: "reset"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "EXECUTION_REVERTED" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if apiErr.Invocation == nil || apiErr.Invocation.Status != "reverted" {
		t.Fatalf("expected invocation in error, got %+v", apiErr.Invocation)
	}
}

func TestPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service closed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GetInvocation(context.Background(), "inv-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Message != "service closed" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost:8080", nil); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}
