package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/signalctl/internal/bridge"
	"github.com/danmuck/signalctl/internal/config"
	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/terminal"
	"github.com/danmuck/signalctl/internal/testutil/hosttest"
	"github.com/danmuck/signalctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Host.Port = hosttest.Start(t).Port
	cfg.API.WaitTimeout = config.D(3 * time.Second)
	cfg.Specification.Path = filepath.Join(dir, "signal.spec.json")
	if mutate != nil {
		mutate(&cfg)
	}
	store := config.NewFileStore(filepath.Join(dir, "signal.toml"), cfg.Specification.Path)
	if err := store.SaveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	session := terminal.NewSession(cfg.TerminalOptions(), iso.NewJSONCodec(iso.DefaultSpec()), nil)
	b := bridge.New(session, store, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		b.Close()
	})
	return New(b, cfg, Info{Name: "signalctl", Version: "test"})
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAmbientEndpoints(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nil)
	for _, path := range []string{"/health", "/ready", "/about", "/metrics"} {
		if rec := do(t, s, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rec.Code, rec.Body.String())
		}
	}
	ready := decode[map[string]any](t, do(t, s, http.MethodGet, "/ready", nil))
	if ready["connection"] != "disconnected" {
		t.Fatalf("unexpected ready body: %v", ready)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPut, "/api/connection/close", nil)
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("close while disconnected status=%d", rec.Code)
	}
	detail := decode[map[string]string](t, rec)["detail"]
	if !strings.Contains(detail, "already disconnected") {
		t.Fatalf("detail=%q", detail)
	}

	rec = do(t, s, http.MethodPut, "/api/connection/open", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("open status=%d body=%s", rec.Code, rec.Body.String())
	}
	conn := decode[map[string]any](t, rec)
	if conn["status"] != "connected" {
		t.Fatalf("unexpected connection: %v", conn)
	}

	if rec := do(t, s, http.MethodPut, "/api/connection/open", nil); rec.Code != http.StatusNotAcceptable {
		t.Fatalf("second open status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/connection/restart", map[string]any{}); rec.Code != http.StatusOK {
		t.Fatalf("restart status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/api/connection", nil); rec.Code != http.StatusOK {
		t.Fatalf("get connection status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/connection/open", "not an object"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", rec.Code)
	}
}

func TestTransactionFlow(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nil)
	if rec := do(t, s, http.MethodPut, "/api/connection/open", nil); rec.Code != http.StatusOK {
		t.Fatalf("open status=%d", rec.Code)
	}

	if rec := do(t, s, http.MethodPost, "/api/transactions", "junk"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", rec.Code)
	}

	tx := map[string]any{
		"message_type": "0200",
		"data_fields":  map[string]string{"2": "4111111111111111", "4": "000000001000", "11": "000321"},
	}
	rec := do(t, s, http.MethodPost, "/api/transactions", tx)
	if rec.Code != http.StatusOK {
		t.Fatalf("send status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[iso.Transaction](t, rec)
	if resp.MTI != "0210" || resp.MatchID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = do(t, s, http.MethodGet, "/api/transactions/"+resp.MatchID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d", rec.Code)
	}
	stored := decode[iso.Transaction](t, rec)
	if stored.Fields["2"] != "************1111" {
		t.Fatalf("pan not masked: %q", stored.Fields["2"])
	}

	all := decode[map[string]iso.Transaction](t, do(t, s, http.MethodGet, "/api/transactions", nil))
	if len(all) != 2 {
		t.Fatalf("transactions=%d want 2", len(all))
	}

	rev := decode[[]iso.Transaction](t, do(t, s, http.MethodGet, "/api/transactions/reversible", nil))
	if len(rev) != 1 || rev[0].ID != resp.MatchID {
		t.Fatalf("reversible=%+v", rev)
	}

	rec = do(t, s, http.MethodPost, "/api/transactions/"+resp.MatchID+"/reverse", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reverse status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[iso.Transaction](t, rec); got.MTI != "0410" {
		t.Fatalf("reversal response mti=%q", got.MTI)
	}

	if rec := do(t, s, http.MethodGet, "/api/transactions/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/transactions/missing/reverse", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("reverse missing status=%d", rec.Code)
	}
}

func TestSpecificationUpdate(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nil)

	spec := decode[iso.Spec](t, do(t, s, http.MethodGet, "/api/specification", nil))
	spec.Version = "7"
	rec := do(t, s, http.MethodPut, "/api/specification", spec)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[iso.Spec](t, do(t, s, http.MethodGet, "/api/specification", nil)); got.Version != "7" {
		t.Fatalf("version=%q", got.Version)
	}

	spec.Name = ""
	if rec := do(t, s, http.MethodPut, "/api/specification", spec); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid spec status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestConfigUpdateMergesAndHidesToken(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPut, "/api/config", map[string]any{"api": map[string]any{"hide_secrets": false}})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	cfg := decode[map[string]map[string]any](t, do(t, s, http.MethodGet, "/api/config", nil))
	if cfg["api"]["hide_secrets"] != false || cfg["api"]["listen"] != "127.0.0.1:7777" {
		t.Fatalf("unexpected config: %v", cfg["api"])
	}
	if _, ok := cfg["api"]["token"]; ok {
		t.Fatalf("token leaked in config output")
	}

	rec = do(t, s, http.MethodPut, "/api/config", map[string]any{"transport": map[string]any{"reconnect_attempts": 0}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid config status=%d", rec.Code)
	}
}

func TestTokenAndRateLimit(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.API.Token = "secret"
		cfg.API.RateLimit = 0.001
		cfg.API.RateBurst = 2
	})

	if rec := do(t, s, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health should stay open, status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/connection", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/connection", nil, "Authorization", "Bearer secret"); rec.Code != http.StatusOK {
		t.Fatalf("valid token status=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/connection", nil, "Authorization", "Bearer secret"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("rate limited status=%d", rec.Code)
	}
}
