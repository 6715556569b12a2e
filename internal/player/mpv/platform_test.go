package mpv

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	platform := DetectPlatform()

	switch runtime.GOOS {
	case "windows":
		assert.Equal(t, PlatformWindows, platform)
	case "darwin":
		assert.Equal(t, PlatformMac, platform)
	case "linux":
		if isWSL() {
			assert.Equal(t, PlatformWSL, platform)
		} else {
			assert.Equal(t, PlatformLinux, platform)
		}
	}
}

func TestGetMPVExecutable(t *testing.T) {
	tests := []struct {
		platform Platform
		expected string
	}{
		{PlatformLinux, "mpv"},
		{PlatformMac, "mpv"},
		{PlatformWindows, "mpv.exe"},
		{PlatformWSL, "mpv"},
	}

	for _, tt := range tests {
		t.Run(tt.platform.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetMPVExecutable(tt.platform))
		})
	}
}

func TestGetIPCConfig(t *testing.T) {
	tests := []struct {
		platform     Platform
		expectedType IPCType
		isSocket     bool
		prefix       string
	}{
		{PlatformLinux, IPCUnixSocket, true, os.TempDir()},
		{PlatformMac, IPCUnixSocket, true, os.TempDir()},
		{PlatformWSL, IPCUnixSocket, true, os.TempDir()},
		{PlatformWindows, IPCNamedPipe, false, `\\.\pipe\`},
	}

	for _, tt := range tests {
		t.Run(tt.platform.String(), func(t *testing.T) {
			config, err := GetIPCConfig(tt.platform, "secondary")
			require.NoError(t, err)

			assert.Equal(t, tt.expectedType, config.Type)
			assert.Equal(t, tt.isSocket, config.IsSocket)
			assert.True(t, strings.HasPrefix(config.Address, tt.prefix), config.Address)
			assert.Contains(t, config.Address, "vguide-mpv-secondary-")
		})
	}
}

func TestGetIPCConfig_Unique(t *testing.T) {
	a, err := GetIPCConfig(PlatformLinux, "primary")
	require.NoError(t, err)
	b, err := GetIPCConfig(PlatformLinux, "primary")
	require.NoError(t, err)

	assert.NotEqual(t, a.Address, b.Address)
	assert.True(t, strings.HasSuffix(a.Address, ".sock"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "primary", sanitize("primary"))
	assert.Equal(t, "pip-2", sanitize("PiP 2"))
	assert.Equal(t, "surface", sanitize(""))
}

func TestGetGopvConnectionString(t *testing.T) {
	assert.Equal(t, "tcp://127.0.0.1:9000", GetGopvConnectionString(&IPCConfig{Type: IPCTCP, Address: "127.0.0.1:9000"}))
	assert.Equal(t, "/tmp/x.sock", GetGopvConnectionString(&IPCConfig{Type: IPCUnixSocket, Address: "/tmp/x.sock", IsSocket: true}))
	assert.Equal(t, `\\.\pipe\x`, GetGopvConnectionString(&IPCConfig{Type: IPCNamedPipe, Address: `\\.\pipe\x`}))
	assert.Equal(t, "--input-ipc-server=/tmp/x.sock", GetMPVIPCArgument(&IPCConfig{Address: "/tmp/x.sock"}))
}

func TestIsWSL(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("WSL detection only applies on linux")
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		t.Skip("cannot read /proc/version")
	}

	version := strings.ToLower(string(data))
	expected := strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
	assert.Equal(t, expected, isWSL())
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"release", "mpv 0.38.0 Copyright © 2000-2024 mpv/MPlayer/mplayer2 projects\n built on ...", "0.38.0"},
		{"git build", "mpv v0.37.0-512-g3c8f1b0 Copyright © 2000-2023 mpv/MPlayer/mplayer2 projects", "0.37.0-512-g3c8f1b0"},
		{"empty", "", "unknown"},
		{"not mpv", "usage: something else", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseVersion(tt.output))
		})
	}
}

func TestInfo_MissingBinary(t *testing.T) {
	info, err := Info(context.Background(), "vguide-no-such-mpv")
	require.Error(t, err)
	assert.Equal(t, "mpv", info.Name)
	assert.Empty(t, info.Version)
}
