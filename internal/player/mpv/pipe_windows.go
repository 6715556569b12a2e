//go:build windows

package mpv

import (
	"time"

	"github.com/Microsoft/go-winio"
)

const pipeProbeTimeout = 200 * time.Millisecond

// isPipeReady dials the named pipe once to see whether mpv is serving it
func isPipeReady(pipePath string) bool {
	timeout := pipeProbeTimeout
	conn, err := winio.DialPipe(pipePath, &timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
