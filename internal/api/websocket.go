package api

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/oarkflow/processguard/internal/model"
)

// metricsFrame is one JSON frame pushed per sampler tick, per spec.md §6's
// GET /ws/metrics contract.
type metricsFrame struct {
	Timestamp time.Time `json:"timestamp"`
	System any `json:"system"`
	Processes map[string]*model.MetricSample `json:"processes"`
	Alerts []model.AlertRecord `json:"alerts"`
}

// metricsStream pushes one frame per monitor_interval until the client
// disconnects; it polls the manager's instance snapshots (each instance's
// latest sample) rather than subscribing to the tick loop directly,
// keeping the sampler free of any knowledge of connected clients.
func (s *Server) metricsStream(c *websocket.Conn) {
	defer c.Close()
	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for range ticker.C {
		frame := s.buildFrame()
		if err := c.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (s *Server) buildFrame() metricsFrame {
	hm, _ := s.facade.HostMetrics()
	processes := map[string]*model.MetricSample{}
	for _, snap := range s.manager.Snapshots() {
		if snap.LatestSample != nil {
			processes[snap.Descriptor.Name] = snap.LatestSample
		}
	}
	return metricsFrame{
		Timestamp: time.Now(),
		System: hm,
		Processes: processes,
		Alerts: s.alerts.List(true),
	}
}
