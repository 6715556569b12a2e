//go:build !windows

package mpv

// isPipeReady always reports false off Windows, where sockets are polled by path
func isPipeReady(string) bool {
	return false
}
