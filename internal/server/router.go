package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/registry"
)

// ProxyHandler serves a request whose Host matched a registered policy.
// It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, registry.HostPolicy) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, registry.HostPolicy) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, policy registry.HostPolicy) error {
	return f(c, policy)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *registry.Registry
	Proxy      ProxyHandler
	ListenPort int
}

const (
	contextKeyPolicy    = "_apicache_policy"
	contextKeyRequestID = "_apicache_request_id"
)

// NewApp builds a Fiber application with Host routing middleware and
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("host registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		policy, ok := PolicyFromContext(c)
		if !ok {
			return renderHostUnmapped(c, opts.Logger, "", opts.ListenPort)
		}
		return opts.Proxy.Handle(c, policy)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，校验方法，并基于 Host/Host:port 查找 HostPolicy。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}

		rawHost := strings.TrimSpace(getHostHeader(c))
		policy, ok := opts.Registry.Lookup(rawHost)
		if !ok {
			return renderHostUnmapped(c, opts.Logger, rawHost, opts.ListenPort)
		}

		if method := c.Method(); method != fiber.MethodGet && method != fiber.MethodHead {
			opts.Logger.WithFields(logrus.Fields{
				"action": "method_check",
				"host":   policy.Host,
				"method": method,
			}).Warn("method not allowed")
			c.Set(fiber.HeaderAllow, "GET, HEAD")
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"error": "method_not_allowed",
			})
		}

		c.Locals(contextKeyPolicy, policy)
		return c.Next()
	}
}

func renderHostUnmapped(c fiber.Ctx, logger *logrus.Logger, host string, port int) error {
	fields := logrus.Fields{
		"action": "host_lookup",
		"host":   host,
		"port":   port,
	}
	logger.WithFields(fields).Warn("host unmapped")

	if host != "" {
		c.Set("X-Api-Cache-Host", host)
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "host_unmapped",
	})
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

// PolicyFromContext returns the HostPolicy resolved by the router middleware.
func PolicyFromContext(c fiber.Ctx) (registry.HostPolicy, bool) {
	if value := c.Locals(contextKeyPolicy); value != nil {
		if policy, ok := value.(registry.HostPolicy); ok {
			return policy, true
		}
	}
	return registry.HostPolicy{}, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
