package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/registry"
)

func TestRouterRoutesRequestWhenHostMatches(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://api.twitter.com/1/statuses.json", nil)
	req.Host = "api.twitter.com"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s, hostHeader=%s)", resp.StatusCode, string(body), resp.Header.Get("X-Api-Cache-Host"))
	}

	if app.storage.keyName != "twitter" {
		t.Fatalf("expected twitter policy, got %s", app.storage.keyName)
	}

	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterMatchesHostWithPort(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://api.twitter.com:5000/", nil)
	req.Host = "API.Twitter.com:5000"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("host lookup should ignore case and port, got %d", resp.StatusCode)
	}
}

func TestRouterReturns404WhenHostUnknown(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://unknown.local/v2/", nil)
	req.Host = "unknown.local"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"host_unmapped"`)) {
		t.Fatalf("expected host_unmapped error, got %s", string(body))
	}
}

func TestRouterRejectsWriteMethods(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("POST", "http://api.twitter.com/1/statuses/update.json", bytes.NewBufferString("status=hi"))
	req.Host = "api.twitter.com"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusMethodNotAllowed {
		t.Fatalf("expected 405 status, got %d", resp.StatusCode)
	}
	if app.storage.keyName != "" {
		t.Fatalf("proxy handler must not run for POST")
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"method_not_allowed"`)) {
		t.Fatalf("expected method_not_allowed error, got %s", string(body))
	}
}

func TestRouterLeavesDiagnosticsPathsAlone(t *testing.T) {
	app := newTestApp(t, 5000)
	app.Post("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	req := httptest.NewRequest("POST", "http://localhost/-/ping", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("diagnostics route should bypass host lookup, got %d", resp.StatusCode)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	if _, err := NewApp(AppOptions{Registry: registry.New(), Proxy: &proxyRecorder{}, ListenPort: 1}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Proxy: &proxyRecorder{}, ListenPort: 1}); err == nil {
		t.Fatalf("missing registry should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Registry: registry.New(), ListenPort: 1}); err == nil {
		t.Fatalf("missing proxy should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Registry: registry.New(), Proxy: &proxyRecorder{}}); err == nil {
		t.Fatalf("invalid port should fail")
	}
}

type testApp struct {
	*fiber.App
	storage *proxyRecorder
}

func newTestApp(t *testing.T, port int) *testApp {
	t.Helper()

	reg := registry.New()
	if err := reg.Register("api.twitter.com", registry.Options{
		ExpireIn: 10 * time.Minute,
		KeyName:  "twitter",
		Upstream: "https://api.twitter.com",
	}); err != nil {
		t.Fatalf("failed to register host: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Registry:   reg,
		Proxy:      recorder,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, storage: recorder}
}

type proxyRecorder struct {
	lastPolicy registry.HostPolicy
	keyName    string
}

func (p *proxyRecorder) Handle(c fiber.Ctx, policy registry.HostPolicy) error {
	p.lastPolicy = policy
	p.keyName = policy.KeyName
	return c.SendStatus(fiber.StatusNoContent)
}
