//go:build !windows

package handler

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// CPU tracking state for calculating delta between polls
var (
	cpuMu          sync.Mutex
	lastCPUTime    time.Duration
	lastWallTime   time.Time
	cpuInitialized bool
)

// getCPUUsage returns the CPU usage percentage for this process since the
// last call, capped at one core. The first call returns 0.
func getCPUUsage() float64 {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}

	userTime := time.Duration(rusage.Utime.Nano())
	sysTime := time.Duration(rusage.Stime.Nano())
	total := userTime + sysTime
	now := time.Now()

	cpuMu.Lock()
	defer cpuMu.Unlock()

	if !cpuInitialized {
		lastCPUTime = total
		lastWallTime = now
		cpuInitialized = true
		return 0
	}

	cpuDelta := total - lastCPUTime
	wallDelta := now.Sub(lastWallTime)
	lastCPUTime = total
	lastWallTime = now

	if wallDelta <= 0 {
		return 0
	}

	pct := float64(cpuDelta) / float64(wallDelta) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
