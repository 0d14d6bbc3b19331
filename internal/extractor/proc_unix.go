//go:build !windows

package extractor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// killProcessGroup runs the command in its own process group and kills the
// whole group on cancellation, so helpers spawned by the tool (ffmpeg for
// HLS fragments) die with it.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
