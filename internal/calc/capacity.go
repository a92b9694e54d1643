package calc

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LimitingFactor tags which resource produced the final capacity
// bound, per spec.md §3.
type LimitingFactor string

const (
	LimitCPU             LimitingFactor = "cpu"
	LimitMemory          LimitingFactor = "memory"
	LimitConfig          LimitingFactor = "config"
	LimitStrategy        LimitingFactor = "strategy"
	LimitBalanced        LimitingFactor = "balanced"
	LimitCapacityUnknown LimitingFactor = "capacity-unknown"
)

// Result is the outcome of one capacity evaluation.
type Result struct {
	MaxByCPU       int
	MaxByMemory    int
	MaxByConfig    int
	Final          int
	LimitingFactor LimitingFactor
}

// Limits are the configured ceilings the capacity calculator clamps
// system measurements against (spec.md §6 limits.*).
type Limits struct {
	MaxCPUPercent          float64
	MaxMemoryPercent       float64
	WorkerMemoryEstimateMB float64
	ReserveCPUCores        int
}

// SystemProbe reads live system resource usage. It is implemented by
// GopsutilProbe in production and can be stubbed in tests.
type SystemProbe interface {
	CPUPercent(ctx context.Context) (float64, error)
	TotalCores() (int, error)
	MemoryMB(ctx context.Context) (totalMB, availableMB float64, err error)
}

// GopsutilProbe reads CPU and memory usage via gopsutil.
type GopsutilProbe struct{}

// CPUPercent returns the current overall CPU utilization, 0-100.
func (GopsutilProbe) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// TotalCores returns the number of logical CPU cores.
func (GopsutilProbe) TotalCores() (int, error) {
	return cpu.Counts(true)
}

// MemoryMB returns total and available memory in megabytes.
func (GopsutilProbe) MemoryMB(ctx context.Context) (float64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	const mb = 1024 * 1024
	return float64(vm.Total) / mb, float64(vm.Available) / mb, nil
}

// conservativeCapacity is returned when the system probe fails, per
// spec.md §4.4 and §7.
const conservativeCapacity = 4

// Capacity implements spec.md §4.4. configMax is the queue's
// max_workers; it is intersected into MaxByConfig but the final
// cpu/memory-derived bound is reported separately so the engine can
// distinguish "clamped by capacity" from "clamped by config".
func Capacity(ctx context.Context, probe SystemProbe, limits Limits, configMax int) Result {
	cpuPct, cpuErr := probe.CPUPercent(ctx)
	totalCores, coresErr := probe.TotalCores()
	totalMemMB, availMemMB, memErr := probe.MemoryMB(ctx)

	if cpuErr != nil || coresErr != nil || memErr != nil {
		return Result{
			MaxByCPU:       conservativeCapacity,
			MaxByMemory:    conservativeCapacity,
			MaxByConfig:    configMax,
			Final:          conservativeCapacity,
			LimitingFactor: LimitCapacityUnknown,
		}
	}

	usableCores := totalCores - limits.ReserveCPUCores
	if usableCores < 1 {
		usableCores = 1
	}

	availableCPUFraction := (limits.MaxCPUPercent - cpuPct) / 100.0
	if availableCPUFraction < 0 {
		availableCPUFraction = 0
	}
	maxByCPU := int(math.Floor(float64(usableCores) * availableCPUFraction))

	usedMemPct := 100.0 * (totalMemMB - availMemMB) / totalMemMB
	availableMemFraction := (limits.MaxMemoryPercent - usedMemPct) / 100.0
	if availableMemFraction < 0 {
		availableMemFraction = 0
	}
	workerEstimate := limits.WorkerMemoryEstimateMB
	if workerEstimate <= 0 {
		workerEstimate = 128
	}
	maxByMemory := int(math.Floor(totalMemMB * availableMemFraction / workerEstimate))

	final := maxByCPU
	factor := LimitCPU
	switch {
	case maxByMemory < maxByCPU:
		final = maxByMemory
		factor = LimitMemory
	case maxByMemory == maxByCPU:
		factor = LimitBalanced
	}
	if final < 0 {
		final = 0
	}

	return Result{
		MaxByCPU:       maxByCPU,
		MaxByMemory:    maxByMemory,
		MaxByConfig:    configMax,
		Final:          final,
		LimitingFactor: factor,
	}
}
