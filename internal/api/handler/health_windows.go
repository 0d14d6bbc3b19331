//go:build windows

package handler

// getCPUUsage is not tracked on Windows.
func getCPUUsage() float64 {
	return 0
}
