package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/vidflow/vidflow/internal/supervisor"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	sup       *supervisor.Supervisor
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, sup *supervisor.Supervisor) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		sup:       sup,
	}
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string  `json:"status" example:"healthy"`
	Timestamp     string  `json:"timestamp"`
	Version       string  `json:"version"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveStreams int     `json:"active_streams"`
	CPU           CPUInfo `json:"cpu"`
	Memory        MemInfo `json:"memory"`
}

// CPUInfo reports host load.
type CPUInfo struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`
}

// MemInfo reports host memory usage in megabytes.
type MemInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	AvailableMB float64 `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// LivezOutput is the output for the liveness endpoint.
type LivezOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including host metrics and active stream count",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)
}

// GetLivez reports process liveness.
func (h *HealthHandler) GetLivez(_ context.Context, _ *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           CPUInfo{Cores: runtime.NumCPU()},
	}
	if h.sup != nil {
		resp.ActiveStreams = h.sup.Count()
	}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		resp.CPU.Load1Min = loadAvg.Load1
		resp.CPU.Load5Min = loadAvg.Load5
		resp.CPU.Load15Min = loadAvg.Load15
	}

	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		resp.Memory = MemInfo{
			TotalMB:     float64(vmStat.Total) / 1024 / 1024,
			UsedMB:      float64(vmStat.Used) / 1024 / 1024,
			AvailableMB: float64(vmStat.Available) / 1024 / 1024,
			UsedPercent: vmStat.UsedPercent,
		}
	}

	return &HealthOutput{Body: resp}, nil
}
