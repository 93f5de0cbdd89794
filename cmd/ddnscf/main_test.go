package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/gofrs/flock"
)

const testZone = "023e105f4ecef8ad9ca31a8372d0c353"

// fakeAPI serves the Cloudflare endpoints the command talks to.
type fakeAPI struct {
	mu      sync.Mutex
	content string // empty means the record does not exist
	puts    []map[string]any
	lists   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	result := []map[string]any{}
	switch {
	case r.URL.Path == "/zones":
		result = append(result, map[string]any{"id": testZone, "name": "example.com"})
	case r.Method == http.MethodGet && r.URL.Path == "/zones/"+testZone+"/dns_records":
		f.lists++
		if f.content != "" {
			result = append(result, map[string]any{"id": "rec1", "name": "home.example.com", "type": "A", "content": f.content, "ttl": 1})
		}
	case r.Method == http.MethodPut && r.URL.Path == "/zones/"+testZone+"/dns_records/rec1":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.puts = append(f.puts, body)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "errors": []any{}, "messages": []any{}, "result": body})
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "errors": []any{map[string]any{"code": 7003, "message": "No route for that URI"}}})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"success": true, "errors": []any{}, "messages": []any{}, "result": result,
		"result_info": map[string]any{"page": 1, "per_page": 50, "count": len(result), "total_count": len(result), "total_pages": 1},
	})
}

func runCommand(t *testing.T, args ...string) (int, string) {
	t.Helper()
	clearEnv(t)
	t.Setenv("API_TOKEN", "test-token")
	var stderr bytes.Buffer
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), ".env")}, args...)
	code := execute(context.Background(), args, &stderr)
	return code, stderr.String()
}

func TestExecuteUpdate(t *testing.T) {
	api := &fakeAPI{content: "192.0.2.1"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-id", testZone, "--record", "home.example.com", "--ip", "203.0.113.7")
	if code != ddns.ExitOK {
		t.Fatalf("Expected exit %d; got %d\n%s", ddns.ExitOK, code, out)
	}
	if len(api.puts) != 1 || api.puts[0]["content"] != "203.0.113.7" {
		t.Fatalf("Expected one PUT with the new address; got %v", api.puts)
	}
}

func TestExecuteNoChange(t *testing.T) {
	api := &fakeAPI{content: "203.0.113.7"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-name", "example.com", "--record", "home.example.com", "--ip", "203.0.113.7")
	if code != ddns.ExitOK {
		t.Fatalf("Expected exit %d; got %d\n%s", ddns.ExitOK, code, out)
	}
	if len(api.puts) != 0 {
		t.Fatalf("Expected no writes; got %v", api.puts)
	}
}

func TestExecuteRecordNotFound(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-id", testZone, "--record", "home.example.com", "--ip", "203.0.113.7")
	if code != ddns.ExitNotFound {
		t.Fatalf("Expected exit %d; got %d\n%s", ddns.ExitNotFound, code, out)
	}
	if !strings.Contains(out, "No A record found for home.example.com") {
		t.Fatalf("Expected a not-found warning; got %q", out)
	}
}

func TestExecuteZoneLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-name", "example.com", "--record", "home.example.com", "--ip", "192.0.2.1")
	if code != ddns.ExitLookup {
		t.Fatalf("Expected exit %d for an unreachable API; got %d\n%s", ddns.ExitLookup, code, out)
	}
}

func TestExecuteZoneNameUnknown(t *testing.T) {
	api := &fakeAPI{content: "192.0.2.1"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-name", "example.org", "--record", "home.example.org", "--ip", "192.0.2.1")
	if code != ddns.ExitConfig {
		t.Fatalf("Expected exit %d for an unknown zone; got %d\n%s", ddns.ExitConfig, code, out)
	}
	if api.lists != 0 {
		t.Fatalf("Expected no record queries; got %d", api.lists)
	}
}

func TestExecuteInterfaceFailureReported(t *testing.T) {
	api := &fakeAPI{content: "192.0.2.1"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-id", testZone, "--record", "home.example.com", "--interface", "does-not-exist0")
	if code != ddns.ExitResolve {
		t.Fatalf("Expected exit %d; got %d\n%s", ddns.ExitResolve, code, out)
	}
	if strings.Count(out, "Error reading public IP") != 1 {
		t.Fatalf("Expected the failure to be reported once; got %q", out)
	}
	if len(api.puts) != 0 {
		t.Fatalf("Expected no writes; got %v", api.puts)
	}
}

func TestExecuteConfigError(t *testing.T) {
	api := &fakeAPI{content: "192.0.2.1"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, _ := runCommand(t, "--api-url", srv.URL, "--zone-id", testZone, "--ip", "203.0.113.7")
	if code != ddns.ExitConfig {
		t.Fatalf("Expected exit %d for a missing record name; got %d", ddns.ExitConfig, code)
	}
	code, _ = runCommand(t, "--api-url", srv.URL, "--zone-id", testZone, "--record", "home.example.com", "--ip", "not-an-ip")
	if code != ddns.ExitConfig {
		t.Fatalf("Expected exit %d for an invalid --ip; got %d", ddns.ExitConfig, code)
	}
	if api.lists != 0 {
		t.Fatalf("Expected no API calls on configuration errors; got %d", api.lists)
	}
}

func TestExecuteLockHeld(t *testing.T) {
	api := &fakeAPI{content: "192.0.2.1"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	lockFile := filepath.Join(t.TempDir(), "ddnscf.lock")
	held := flock.New(lockFile)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("Unable to take the lock: %v", err)
	}
	defer held.Unlock()

	code, out := runCommand(t, "--api-url", srv.URL, "--zone-id", testZone, "--record", "home.example.com", "--ip", "203.0.113.7", "--lock-file", lockFile)
	if code != ddns.ExitOK {
		t.Fatalf("Expected exit %d; got %d\n%s", ddns.ExitOK, code, out)
	}
	if api.lists != 0 {
		t.Fatalf("Expected no API calls while the lock is held; got %d", api.lists)
	}
}

func TestExitCode(t *testing.T) {
	if code := exitCode(&ddns.ConfigError{Setting: "x", Reason: "y"}); code != ddns.ExitConfig {
		t.Fatalf("Expected %d; got %d", ddns.ExitConfig, code)
	}
	if code := exitCode(context.Canceled); code != ddns.ExitUnknown {
		t.Fatalf("Expected %d; got %d", ddns.ExitUnknown, code)
	}
	if code := exitCode(&exitError{code: ddns.ExitResolve, err: context.Canceled}); code != ddns.ExitResolve {
		t.Fatalf("Expected %d; got %d", ddns.ExitResolve, code)
	}
}
