package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/oarkflow/processguard/internal/config"
	"github.com/oarkflow/processguard/internal/model"
)

func (s *Server) listProcesses(c *fiber.Ctx) error {
	return c.JSON(s.manager.Snapshots())
}

func (s *Server) getProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	return c.JSON(ins.Snapshot())
}

func (s *Server) createProcess(c *fiber.Ctx) error {
	var desc model.ProcessDescriptor
	if err := c.BodyParser(&desc); err != nil {
		return respondError(c, model.NewConfigError("invalid process descriptor body: %v", err))
	}
	if desc.Name == "" {
		return respondError(c, model.NewConfigError("process descriptor missing a name"))
	}
	desc = desc.WithDefaults()

	trial := make([]model.ProcessDescriptor, 0, len(s.manager.Snapshots())+1)
	replaced := false
	for _, snap := range s.manager.Snapshots() {
		if snap.Descriptor.Name == desc.Name {
			trial = append(trial, desc)
			replaced = true
			continue
		}
		trial = append(trial, snap.Descriptor)
	}
	if !replaced {
		trial = append(trial, desc)
	}
	if err := config.Validate(config.Config{Processes: trial}); err != nil {
		return respondError(c, err)
	}

	s.manager.Register(desc)
	ins, _ := s.manager.Get(desc.Name)
	return c.Status(fiber.StatusCreated).JSON(ins.Snapshot())
}

func (s *Server) deleteProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	_ = ins.Stop()
	s.manager.Deregister(name)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) startProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	ignoreDeps := c.QueryBool("ignore_dependencies", false)
	if err := ins.Start(ignoreDeps); err != nil {
		return respondError(c, err)
	}
	return c.JSON(ins.Snapshot())
}

func (s *Server) stopProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	if err := ins.Stop(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(ins.Snapshot())
}

func (s *Server) restartProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	if err := ins.Restart(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(ins.Snapshot())
}

func (s *Server) forceEnableProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	if err := ins.ForceEnable(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(ins.Snapshot())
}

func (s *Server) resetCrashesProcess(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	if err := ins.ResetCrashes(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(ins.Snapshot())
}

func (s *Server) crashStats(c *fiber.Ctx) error {
	name := c.Params("name")
	ins, ok := s.manager.Get(name)
	if !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	snap := ins.Snapshot()
	return c.JSON(fiber.Map{
		"process": name,
		"crash_records": snap.CrashRecords,
		"total_restarts": snap.TotalRestarts,
		"consecutive_restarts": snap.ConsecutiveRestarts,
		"disabled": snap.Disabled,
		"quarantine_until": snap.QuarantineUntil,
	})
}

func (s *Server) recentLogs(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := s.manager.Get(name); !ok {
		return respondError(c, &model.NotFoundError{Kind: "process", ID: name})
	}
	lines, _ := strconv.Atoi(c.Query("lines", "100"))
	if lines <= 0 {
		lines = 100
	}
	out, err := s.manager.Logs().Tail(name, lines)
	if err != nil {
		return respondError(c, &model.TransientIOError{Op: "tail", Err: err})
	}
	return c.JSON(fiber.Map{"process": name, "lines": out})
}

func (s *Server) listAlerts(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active_only", false)
	return c.JSON(s.alerts.List(activeOnly))
}

func (s *Server) acknowledgeAlert(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.alerts.Acknowledge(id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) resolveAlert(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.alerts.Resolve(id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) systemInfo(c *fiber.Ctx) error {
	hm, err := s.facade.HostMetrics()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"uptime_seconds": hm.Uptime.Seconds(),
		"process_count": len(s.manager.Names()),
	})
}

func (s *Server) systemMetrics(c *fiber.Ctx) error {
	hm, err := s.facade.HostMetrics()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(hm)
}

func (s *Server) disabledProcesses(c *fiber.Ctx) error {
	var names []string
	for _, snap := range s.manager.Snapshots() {
		if snap.Disabled {
			names = append(names, snap.Descriptor.Name)
		}
	}
	return c.JSON(names)
}

func (s *Server) quarantinedProcesses(c *fiber.Ctx) error {
	var names []string
	for _, snap := range s.manager.Snapshots() {
		if !snap.QuarantineUntil.IsZero() {
			names = append(names, snap.Descriptor.Name)
		}
	}
	return c.JSON(names)
}

// health returns 200 iff the sampler's last tick completed within
// 2*monitor_interval, per spec.md §6.
func (s *Server) health(c *fiber.Ctx) error {
	last := s.sampler.LastTick()
	if last.IsZero() {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	if time.Since(last) > 2*s.monitorInterval {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}
