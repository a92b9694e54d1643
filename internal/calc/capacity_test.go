package calc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DimaJoyti/queue-autoscaler/internal/calc"
)

type stubProbe struct {
	cpuPct     float64
	cores      int
	totalMB    float64
	availMB    float64
	err        error
}

func (s stubProbe) CPUPercent(context.Context) (float64, error) { return s.cpuPct, s.err }
func (s stubProbe) TotalCores() (int, error)                    { return s.cores, s.err }
func (s stubProbe) MemoryMB(context.Context) (float64, float64, error) {
	return s.totalMB, s.availMB, s.err
}

func TestCapacity(t *testing.T) {
	limits := calc.Limits{MaxCPUPercent: 80, MaxMemoryPercent: 80, WorkerMemoryEstimateMB: 128, ReserveCPUCores: 1}

	t.Run("probe failure falls back to the conservative constant", func(t *testing.T) {
		probe := stubProbe{err: errors.New("boom")}
		result := calc.Capacity(context.Background(), probe, limits, 20)
		assert.Equal(t, 4, result.Final)
		assert.Equal(t, calc.LimitCapacityUnknown, result.LimitingFactor)
	})

	t.Run("CPU is the tighter bound", func(t *testing.T) {
		probe := stubProbe{cpuPct: 60, cores: 8, totalMB: 16000, availMB: 15000}
		result := calc.Capacity(context.Background(), probe, limits, 20)
		// usable cores = 7, available fraction = (80-60)/100 = 0.2 -> floor(7*0.2)=1
		assert.Equal(t, 1, result.MaxByCPU)
		assert.Equal(t, calc.LimitCPU, result.LimitingFactor)
		assert.Equal(t, result.MaxByCPU, result.Final)
	})

	t.Run("memory is the tighter bound", func(t *testing.T) {
		probe := stubProbe{cpuPct: 10, cores: 16, totalMB: 4000, availMB: 500}
		result := calc.Capacity(context.Background(), probe, limits, 20)
		assert.Equal(t, calc.LimitMemory, result.LimitingFactor)
		assert.Equal(t, result.MaxByMemory, result.Final)
	})

	t.Run("final never goes negative", func(t *testing.T) {
		probe := stubProbe{cpuPct: 99, cores: 1, totalMB: 1000, availMB: 1000}
		result := calc.Capacity(context.Background(), probe, limits, 20)
		assert.GreaterOrEqual(t, result.Final, 0)
	})
}
