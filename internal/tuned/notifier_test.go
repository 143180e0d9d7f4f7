package tuned

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/pkg/utils"
)

func TestValidateCallbackURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"valid external URL", "https://example.com/callback", nil},
		{"valid localhost for development", "http://localhost:8000/callback", nil},
		{"invalid scheme", "ftp://example.com/callback", ErrInvalidURL},
		{"missing hostname", "http:///callback", ErrInvalidURL},
		{"metadata endpoint - IP", "http://169.254.169.254/metadata", ErrMetadataEndpoint},
		{"metadata endpoint - hostname", "http://metadata.google.internal/metadata", ErrMetadataEndpoint},
		{"wildcard address", "http://0.0.0.0:8000/callback", ErrInternalHost},
		{"direct loopback IP", "http://127.0.0.1:8000/callback", ErrInternalHost},
		{"private network", "http://10.1.2.3/callback", ErrInternalHost},
		{"public IP", "http://8.8.8.8/callback", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCallbackURL(tt.url)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", false},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.0.1", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"fc00::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if got := isPrivateIP(ip); got != tt.want {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

// callbackServer records every callback and answers with the scripted
// status codes, then 200.
type callbackServer struct {
	mu       sync.Mutex
	codes    []int
	payloads []NotificationPayload
	secrets  []string
	paths    []string
}

func (c *callbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload NotificationPayload
	_ = json.NewDecoder(r.Body).Decode(&payload)

	c.mu.Lock()
	c.payloads = append(c.payloads, payload)
	c.secrets = append(c.secrets, r.Header.Get(CallbackSecretHeader))
	c.paths = append(c.paths, r.URL.Path)
	code := http.StatusOK
	if len(c.codes) > 0 {
		code = c.codes[0]
		c.codes = c.codes[1:]
	}
	c.mu.Unlock()

	w.WriteHeader(code)
}

// localhostURL rewrites the loopback IP so callback validation accepts it.
func localhostURL(t *testing.T, server *httptest.Server, path string) string {
	t.Helper()
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	return "http://localhost:" + u.Port() + path
}

func testNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 2 * time.Second},
		maxRetries: 2,
		backoff:    utils.NewConstantBackoff(time.Millisecond),
	}
}

func TestNotifierNotifySuccess(t *testing.T) {
	cb := &callbackServer{}
	server := httptest.NewServer(cb)
	defer server.Close()

	n := testNotifier()
	rec := &RunRecord{Run: Run{ID: "tune-1", Status: RunStatusCompleted, Mode: ModeAuto}}
	n.Notify(localhostURL(t, server, "/hooks/{run_id}"), "s3cret", rec)
	n.Wait()

	if len(cb.payloads) != 1 {
		t.Fatalf("expected one callback, got %d", len(cb.payloads))
	}
	if cb.payloads[0].RunID != "tune-1" || cb.payloads[0].Status != RunStatusCompleted {
		t.Fatalf("unexpected payload %+v", cb.payloads[0])
	}
	if cb.secrets[0] != "s3cret" {
		t.Fatalf("expected secret header, got %q", cb.secrets[0])
	}
	if cb.paths[0] != "/hooks/tune-1" {
		t.Fatalf("expected run_id substitution, got %s", cb.paths[0])
	}
}

func TestNotifierRetries(t *testing.T) {
	cb := &callbackServer{codes: []int{http.StatusInternalServerError, http.StatusBadGateway}}
	server := httptest.NewServer(cb)
	defer server.Close()

	n := testNotifier()
	n.Notify(localhostURL(t, server, "/cb"), "", &RunRecord{Run: Run{ID: "r"}})
	n.Wait()

	if len(cb.payloads) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(cb.payloads))
	}
	if cb.secrets[0] != "" {
		t.Fatalf("no secret header expected, got %q", cb.secrets[0])
	}
}

func TestNotifierGivesUp(t *testing.T) {
	cb := &callbackServer{codes: []int{500, 500, 500, 500, 500}}
	server := httptest.NewServer(cb)
	defer server.Close()

	n := testNotifier()
	n.Notify(localhostURL(t, server, "/cb"), "", &RunRecord{Run: Run{ID: "r"}})
	n.Wait()

	if len(cb.payloads) != 3 {
		t.Fatalf("expected maxRetries+1 attempts, got %d", len(cb.payloads))
	}
}

func TestNotifierSkipsInvalidTargets(t *testing.T) {
	cb := &callbackServer{}
	server := httptest.NewServer(cb)
	defer server.Close()

	n := testNotifier()
	n.Notify("", "", &RunRecord{Run: Run{ID: "r"}})
	n.Notify(server.URL+"/cb", "", &RunRecord{Run: Run{ID: "r"}})
	n.Notify(localhostURL(t, server, "/cb"), "", nil)
	n.Wait()

	if len(cb.payloads) != 0 {
		t.Fatalf("expected no callbacks, got %d", len(cb.payloads))
	}
}

func TestExecutorNotifiesOnCompletion(t *testing.T) {
	cb := &callbackServer{}
	server := httptest.NewServer(cb)
	defer server.Close()

	store := NewRunStore()
	n := testNotifier()
	exec := NewRunExecutor(store, &fakeBackend{}, n)

	startRun(t, store, exec, "notified", RunInput{
		TuningYAML:     tuningYAML,
		CallbackURL:    localhostURL(t, server, "/done/{run_id}"),
		CallbackSecret: "k",
	})
	exec.Wait()
	n.Wait()

	if len(cb.payloads) != 1 {
		t.Fatalf("expected one callback, got %d", len(cb.payloads))
	}
	p := cb.payloads[0]
	if p.Status != RunStatusCompleted || !p.Found || p.BestLatencyMs == nil || *p.BestLatencyMs != 100 {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.BaselineLatencyMs == nil || math.Abs(*p.BaselineLatencyMs-200) > 1e-6 {
		t.Fatalf("expected baseline 200ms, got %v", p.BaselineLatencyMs)
	}
	if p.Recommended["temperature"] != "0.6" || p.Evaluations == 0 {
		t.Fatalf("unexpected recommendation %+v", p)
	}
	if cb.paths[0] != "/done/notified" || cb.secrets[0] != "k" {
		t.Fatalf("unexpected callback target %s / %s", cb.paths[0], cb.secrets[0])
	}
}
