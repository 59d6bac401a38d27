package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemStatus handles GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.getSystemStats()

	response := map[string]interface{}{
		"cpu_percent":  cpuPercent,
		"ram_percent":  ramPercent,
		"num_cpu":      runtime.NumCPU(),
		"goroutines":   runtime.NumGoroutine(),
		"runs_cached":  s.container.RunStore.Len(),
		"last_checked": time.Now().Format(time.RFC3339),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// getSystemStats returns CPU and RAM usage percentages. The CPU reading blocks for 100ms.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
