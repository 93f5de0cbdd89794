package ddns_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ddns "github.com/Travis-Britz/cfddns"
)

const zonesResponse = `{
  "success": true,
  "errors": [],
  "messages": [],
  "result": [
    {"id": "zone-example", "name": "example.com"},
    {"id": "zone-home", "name": "home.example.com"},
    {"id": "zone-notexample", "name": "notexample.com"}
  ],
  "result_info": {"page": 1, "per_page": 50, "count": 3, "total_count": 3, "total_pages": 1}
}`

func fakeAccountAPI(t *testing.T, tokenStatus string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/zones", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, zonesResponse)
	})
	mux.HandleFunc("/user/tokens/verify", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"errors":[],"messages":[],"result":{"id":"tok","status":"`+tokenStatus+`"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupZoneID(t *testing.T) {
	srv := fakeAccountAPI(t, "active")

	tests := []struct {
		record string
		want   string
	}{
		{"www.example.com", "zone-example"},
		{"example.com", "zone-example"},
		{"vpn.home.example.com", "zone-home"},
		{"VPN.Home.Example.com.", "zone-home"},
	}
	for _, tt := range tests {
		t.Run(tt.record, func(t *testing.T) {
			zid, err := ddns.LookupZoneID(context.Background(), testToken, tt.record, ddns.APIURL(srv.URL), ddns.APIHTTPClient(srv.Client()))
			if err != nil {
				t.Fatalf("LookupZoneID failed: %s", err)
			}
			if zid != tt.want {
				t.Fatalf("Expected %q; got %q", tt.want, zid)
			}
		})
	}

	if _, err := ddns.LookupZoneID(context.Background(), testToken, "www.unrelated.org", ddns.APIURL(srv.URL)); !errors.Is(err, ddns.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for a record outside every zone; got %v", err)
	}
}

func TestLookupZoneIDServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := ddns.LookupZoneID(context.Background(), testToken, "www.example.com", ddns.APIURL(srv.URL), ddns.APIHTTPClient(srv.Client()))
	if err == nil {
		t.Fatalf("Expected an error for a failing API")
	}
	if errors.Is(err, ddns.ErrNotFound) {
		t.Fatalf("Expected a server failure to be distinct from ErrNotFound; got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("Expected exactly 1 request without retries; got %d", n)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Expected the failure to return promptly; took %s", elapsed)
	}
}

func TestVerifyToken(t *testing.T) {
	if err := ddns.VerifyToken(context.Background(), testToken, ddns.APIURL(fakeAccountAPI(t, "active").URL)); err != nil {
		t.Fatalf("VerifyToken failed: %s", err)
	}
	if err := ddns.VerifyToken(context.Background(), testToken, ddns.APIURL(fakeAccountAPI(t, "disabled").URL)); err == nil {
		t.Fatalf("Expected an error for a disabled token")
	}
}
