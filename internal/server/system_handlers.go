package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/database"
	"github.com/aristath/tradeledger/internal/di"
	"github.com/aristath/tradeledger/internal/modules/settlement"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	container   *di.Container
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(container *di.Container, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		container:   container,
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status            string           `json:"status"`
	StoreBackend      string           `json:"store_backend"`
	UptimeSeconds     int64            `json:"uptime_seconds"`
	CPUPercent        float64          `json:"cpu_percent"`
	RAMPercent        float64          `json:"ram_percent"`
	Settlement        settlement.Stats `json:"settlement"`
	StreamSubscribers int              `json:"stream_subscribers"`
	Database          *database.Stats  `json:"database,omitempty"`
}

// HandleSystemStatus reports host load, store health and settlement counters
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:            "healthy",
		StoreBackend:      h.container.StoreBackend,
		UptimeSeconds:     int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:        cpuPercent,
		RAMPercent:        ramPercent,
		Settlement:        h.container.Engine.Stats(),
		StreamSubscribers: h.container.EventBus.SubscriberCount(),
	}

	if db := h.container.LedgerDB; db != nil {
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Msg("Ledger database unhealthy")
			resp.Status = "degraded"
		}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database stats")
		} else {
			resp.Database = stats
		}
	}

	api.WriteJSON(w, h.log, http.StatusOK, resp)
}

// storeHealthy pings the SQLite backend; other backends are in-process.
func (h *SystemHandlers) storeHealthy(ctx context.Context) error {
	if db := h.container.LedgerDB; db != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.Conn().PingContext(ctx)
	}
	return nil
}

// getSystemStats calculates CPU and RAM usage percentages.
// The 100ms CPU sample keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
