//go:build windows

package extractor

import "os/exec"

// killProcessGroup keeps the default cancellation, which kills only the tool.
func killProcessGroup(cmd *exec.Cmd) {}
