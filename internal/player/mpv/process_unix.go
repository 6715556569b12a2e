//go:build !windows

package mpv

import "os/exec"

// setupProcessAttributes leaves the command untouched off Windows
func setupProcessAttributes(*exec.Cmd) {}
