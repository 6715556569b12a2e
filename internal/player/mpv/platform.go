package mpv

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/justchokingaround/vguide/internal/player"
)

// Platform represents the operating system platform
type Platform int

const (
	PlatformLinux Platform = iota
	PlatformWindows
	PlatformWSL
	PlatformMac
)

// String returns the platform name
func (p Platform) String() string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformWSL:
		return "wsl"
	case PlatformMac:
		return "darwin"
	default:
		return "linux"
	}
}

// IPCType represents the IPC connection type
type IPCType int

const (
	IPCUnixSocket IPCType = iota
	IPCNamedPipe
	IPCTCP
)

// IPCConfig holds IPC connection configuration
type IPCConfig struct {
	Type     IPCType
	Address  string
	IsSocket bool // true for Unix sockets, false for TCP and pipes
}

// DetectPlatform detects the current platform
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "darwin":
		return PlatformMac
	default:
		if isWSL() {
			return PlatformWSL
		}
		return PlatformLinux
	}
}

// isWSL checks /proc/version for a Windows Subsystem for Linux kernel
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// GetMPVExecutable returns the mpv executable name for the platform.
// WSL uses Linux mpv since gopv cannot reach Windows named pipes from there.
func GetMPVExecutable(platform Platform) string {
	if platform == PlatformWindows {
		return "mpv.exe"
	}
	return "mpv"
}

// FindMPVExecutable looks the platform's mpv executable up in PATH
func FindMPVExecutable(platform Platform) (string, error) {
	executable := GetMPVExecutable(platform)
	path, err := exec.LookPath(executable)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH, install mpv to open playback surfaces", executable)
	}
	return path, nil
}

// Info locates the mpv binary and asks it for its version. An empty binary
// means the platform default from PATH.
func Info(ctx context.Context, binary string) (player.PlayerInfo, error) {
	info := player.PlayerInfo{Name: "mpv"}
	if binary == "" {
		path, err := FindMPVExecutable(DetectPlatform())
		if err != nil {
			return info, err
		}
		binary = path
	} else if path, err := exec.LookPath(binary); err == nil {
		binary = path
	} else {
		return info, fmt.Errorf("mpv binary %q: %w", binary, err)
	}
	info.Path = binary

	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return info, fmt.Errorf("failed to query mpv version: %w", err)
	}
	info.Version = parseVersion(string(out))
	return info, nil
}

// parseVersion takes the version from the first line of mpv --version,
// e.g. "mpv 0.38.0 Copyright © 2000-2024 mpv/MPlayer/mplayer2 projects"
func parseVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "mpv" {
		return "unknown"
	}
	return strings.TrimPrefix(fields[1], "v")
}

// GetIPCConfig generates a fresh IPC endpoint for one surface
func GetIPCConfig(platform Platform, surface string) (*IPCConfig, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("vguide-mpv-%s-%s", sanitize(surface), suffix)

	switch platform {
	case PlatformLinux, PlatformMac, PlatformWSL:
		return &IPCConfig{
			Type:     IPCUnixSocket,
			Address:  filepath.Join(os.TempDir(), name+".sock"),
			IsSocket: true,
		}, nil
	case PlatformWindows:
		return &IPCConfig{
			Type:    IPCNamedPipe,
			Address: `\\.\pipe\` + name,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported platform %v", platform)
	}
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// sanitize keeps socket names to lowercase letters, digits and dashes
func sanitize(name string) string {
	if name == "" {
		return "surface"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
}

// GetMPVIPCArgument returns the mpv command-line argument for IPC
func GetMPVIPCArgument(config *IPCConfig) string {
	return fmt.Sprintf("--input-ipc-server=%s", config.Address)
}

// GetGopvConnectionString returns the connection string for gopv
func GetGopvConnectionString(config *IPCConfig) string {
	if config.Type == IPCTCP {
		return fmt.Sprintf("tcp://%s", config.Address)
	}
	return config.Address
}
