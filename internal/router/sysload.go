package router

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadSample is a point-in-time view of host utilization.
type LoadSample struct {
	CPUPercent float64
	MemPercent float64
}

// LoadSampler reports current system load. Tests inject a stub.
type LoadSampler interface {
	Sample() LoadSample
}

// SystemLoadSampler reads live CPU and memory utilization from the host.
type SystemLoadSampler struct {
	// Interval is how long the CPU probe averages over. Zero means an
	// instantaneous (since-last-call) reading, which is what we want on
	// the request path.
	Interval time.Duration
}

// Sample reads current utilization. Probe failures report zero load: a host
// whose load cannot be read is treated as idle, so routing stays on the
// default model instead of escalating on unknown data.
func (s *SystemLoadSampler) Sample() LoadSample {
	var sample LoadSample

	if percents, err := cpu.Percent(s.Interval, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemPercent = vm.UsedPercent
	}

	return sample
}
