// Package clipboard copies resolved stream URLs to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/atotto/clipboard"
)

// Writer copies text to the clipboard
type Writer struct {
	command []string
	logger  *slog.Logger

	// overridable in tests
	writeAll func(text string) error
	lookPath func(file string) (string, error)
}

// New creates a writer. A non-empty command replaces the system clipboard.
func New(command string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		command:  parseCommand(command),
		logger:   logger,
		writeAll: clipboard.WriteAll,
		lookPath: exec.LookPath,
	}
}

// Write copies text. Without a configured command it tries the clipboard
// package first and then the platform's clipboard tools.
func (w *Writer) Write(text string) error {
	if len(w.command) > 0 {
		return run(w.command, text)
	}

	err := w.writeAll(text)
	if err == nil {
		return nil
	}
	w.logger.Debug("clipboard package failed, trying system tools", "error", err)

	tool := w.systemTool()
	if tool == nil {
		return fmt.Errorf("no clipboard tool found (install wl-clipboard, xclip or xsel): %w", err)
	}
	return run(tool, text)
}

// systemTool picks a clipboard command for the current platform
func (w *Writer) systemTool() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"pbcopy"}
	case "windows":
		return []string{"clip.exe"}
	}

	if isWSL() {
		return []string{"clip.exe"}
	}
	candidates := [][]string{
		{"wl-copy"},
		{"xclip", "-selection", "clipboard"},
		{"xsel", "--clipboard", "--input"},
	}
	for _, c := range candidates {
		if _, err := w.lookPath(c[0]); err == nil {
			return c
		}
	}
	return nil
}

func run(command []string, text string) error {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			err = errors.Join(err, errors.New(msg))
		}
		return fmt.Errorf("clipboard command %s failed: %w", command[0], err)
	}
	return nil
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// parseCommand splits a command line into arguments, respecting quotes
func parseCommand(command string) []string {
	var parts []string
	var current strings.Builder
	var quote rune
	inPart := false

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inPart = true
		case r == ' ' || r == '\t':
			if inPart {
				parts = append(parts, current.String())
				current.Reset()
				inPart = false
			}
		default:
			current.WriteRune(r)
			inPart = true
		}
	}
	if inPart {
		parts = append(parts, current.String())
	}
	return parts
}
