//go:build windows

package mpv

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes starts mpv in its own process group so Ctrl+C in the
// coordinator's console does not reach the surfaces
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
