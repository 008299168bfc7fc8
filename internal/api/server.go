// Package api implements the REST/WebSocket control plane from spec.md
// §6: a thin, out-of-scope collaborator whose wire contract is exercised
// here over github.com/gofiber/fiber/v2, the HTTP framework the teacher's
// own examples/main.go already uses, rather than bare net/http.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/sampler"
	"github.com/oarkflow/processguard/internal/supervisor"
)

// Server wires the supervisor manager, alert bus, sampler, and facade into
// a fiber app implementing spec.md §6's endpoints.
type Server struct {
	app *fiber.App
	manager *supervisor.Manager
	alerts *alert.Bus
	sampler *sampler.Sampler
	facade facade.Facade
	monitorInterval time.Duration
}

// New builds a fiber.App with every route registered; call Listen on the
// returned Server to serve it.
func New(mgr *supervisor.Manager, bus *alert.Bus, samp *sampler.Sampler, f facade.Facade, monitorInterval time.Duration) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: errorHandler,
	})

	s := &Server{
		app: app,
		manager: mgr,
		alerts: bus,
		sampler: samp,
		facade: f,
		monitorInterval: monitorInterval,
	}

	v1 := app.Group("/api/v1")
	v1.Get("/processes", s.listProcesses)
	v1.Post("/processes", s.createProcess)
	v1.Get("/processes/:name", s.getProcess)
	v1.Delete("/processes/:name", s.deleteProcess)
	v1.Post("/processes/:name/start", s.startProcess)
	v1.Post("/processes/:name/stop", s.stopProcess)
	v1.Post("/processes/:name/restart", s.restartProcess)
	v1.Post("/processes/:name/force-enable", s.forceEnableProcess)
	v1.Post("/processes/:name/reset-crashes", s.resetCrashesProcess)
	v1.Get("/processes/:name/crash-stats", s.crashStats)
	v1.Get("/processes/:name/logs/recent", s.recentLogs)

	v1.Get("/alerts", s.listAlerts)
	v1.Post("/alerts/:id/acknowledge", s.acknowledgeAlert)
	v1.Post("/alerts/:id/resolve", s.resolveAlert)

	v1.Get("/system/info", s.systemInfo)
	v1.Get("/system/metrics", s.systemMetrics)
	v1.Get("/system/disabled-processes", s.disabledProcesses)
	v1.Get("/system/quarantined-processes", s.quarantinedProcesses)

	app.Get("/health", s.health)

	app.Use("/ws/metrics", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/metrics", websocket.New(s.metricsStream))

	return s
}

// Listen starts serving on addr; blocks until the listener stops.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code, kind := classifyAPIError(err)
	return c.Status(code).JSON(fiber.Map{"error": kind, "detail": err.Error()})
}
