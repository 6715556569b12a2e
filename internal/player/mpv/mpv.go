package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/diniamo/gopv"
	"github.com/justchokingaround/vguide/internal/player"
)

// ErrNotStarted is returned by surface calls made before Start or after Close
var ErrNotStarted = errors.New("mpv surface not started")

// requester is the part of the gopv client a surface uses
type requester interface {
	Request(args ...any) (any, error)
}

// dial connects to the mpv IPC server. Replaced in tests.
var dial = func(addr string, onErr func(error)) (requester, error) {
	client, err := gopv.Connect(addr, onErr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Options configure one mpv window
type Options struct {
	// Name labels the surface in logs and socket names (primary, secondary)
	Name string
	// Binary overrides the platform mpv executable
	Binary string
	// PictureInPicture opens a small borderless window
	PictureInPicture bool
	// Geometry is the mpv --geometry value for picture-in-picture windows
	Geometry string
	// OnTop keeps picture-in-picture windows above others
	OnTop          bool
	LoadUserConfig bool
	Debug          bool
	ExtraArgs      []string
	// PollInterval is how often playback properties are sampled
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Surface is a player.MediaElement backed by one mpv process. mpv is started
// idle and paused, sources are swapped with loadfile, and state changes are
// detected by sampling properties over IPC.
type Surface struct {
	mu sync.Mutex

	opts     Options
	platform Platform
	binary   string
	logger   *slog.Logger

	// mpv process and IPC
	client    requester
	cmd       *exec.Cmd
	ipcConfig *IPCConfig
	stopping  bool

	onEvent func(player.Event)

	// last sampled state, used to turn polls into edge events
	loaded    bool
	readiness player.Readiness
	paused    bool
	ended     bool
	failed    bool
	active    bool
	idlePolls int
	position  time.Duration

	cancel context.CancelFunc
}

var _ player.MediaElement = (*Surface)(nil)

// New verifies an mpv executable is available and prepares a surface. The
// process is spawned by Start.
func New(opts Options) (*Surface, error) {
	platform := DetectPlatform()

	binary := opts.Binary
	if binary == "" {
		path, err := FindMPVExecutable(platform)
		if err != nil {
			return nil, fmt.Errorf("mpv not found: %w", err)
		}
		binary = path
	} else if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("mpv executable %q not usable: %w", binary, err)
	}

	return newSurface(opts, platform, binary), nil
}

func newSurface(opts Options, platform Platform, binary string) *Surface {
	if opts.Name == "" {
		opts.Name = "primary"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.Geometry == "" {
		opts.Geometry = "25%x25%-32-32"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Surface{
		opts:     opts,
		platform: platform,
		binary:   binary,
		logger:   logger.With("surface", opts.Name),
		paused:   true,
	}
}

// Name returns the surface label
func (s *Surface) Name() string {
	return s.opts.Name
}

// Start spawns mpv and connects to its IPC server. It blocks until the
// connection is up or ctx ends.
func (s *Surface) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.client != nil {
		s.mu.Unlock()
		return nil
	}

	ipcConfig, err := GetIPCConfig(s.platform, s.opts.Name)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to generate IPC config: %w", err)
	}
	s.ipcConfig = ipcConfig

	cmd := exec.Command(s.binary, s.buildArgs()...)
	// Keep mpv off the controlling terminal
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setupProcessAttributes(cmd)

	if err := cmd.Start(); err != nil {
		s.cleanupIPC()
		s.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w", s.binary, err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	s.logger.Debug("mpv started", "pid", cmd.Process.Pid, "ipc", ipcConfig.Address)

	if err := waitForIPC(ctx, ipcConfig); err != nil {
		s.kill()
		return err
	}

	client, err := dial(GetGopvConnectionString(ipcConfig), func(err error) {
		s.logger.Debug("mpv IPC error", "error", err)
	})
	if err != nil {
		s.kill()
		return fmt.Errorf("failed to connect to mpv IPC at %s: %w", ipcConfig.Address, err)
	}

	s.attach(client)
	go s.monitorProcess(cmd)
	return nil
}

// attach installs a connected client and starts the property poller
func (s *Surface) attach(client requester) {
	s.mu.Lock()
	s.client = client
	s.stopping = false
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.monitorPlayback(ctx)
}

// buildArgs builds the command-line arguments for an idle mpv window
func (s *Surface) buildArgs() []string {
	args := []string{
		GetMPVIPCArgument(s.ipcConfig),
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=yes",
		"--pause",
		"--no-ytdl",
		"--no-terminal",
		"--title=vguide " + s.opts.Name,
	}

	if !s.opts.LoadUserConfig {
		args = append(args, "--no-config")
	}
	if !s.opts.Debug {
		args = append(args, "--msg-level=all=warn")
	}

	if s.opts.PictureInPicture {
		args = append(args,
			"--geometry="+s.opts.Geometry,
			"--no-border",
			"--window-minimized=yes",
		)
		if s.opts.OnTop {
			args = append(args, "--ontop")
		}
	}

	return append(args, s.opts.ExtraArgs...)
}

type property struct {
	name  string
	value any
}

// Load replaces the current source. Playback stays paused until Play.
func (s *Surface) Load(ctx context.Context, url string, options player.LoadOptions) error {
	client, err := s.conn()
	if err != nil {
		return err
	}

	loop := "no"
	if options.Loop {
		loop = "inf"
	}
	props := []property{
		{"pause", true},
		{"mute", options.Muted},
		{"loop-file", loop},
		{"start", strconv.FormatFloat(options.StartTime.Seconds(), 'f', 3, 64)},
		{"force-media-title", options.Title},
		{"user-agent", options.UserAgent},
		{"referrer", options.Referer},
	}
	if options.Volume > 0 {
		props = append(props, property{"volume", float64(options.Volume)})
	}

	for _, p := range props {
		if _, err := client.Request("set_property", p.name, p.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}

	s.mu.Lock()
	s.loaded = true
	s.readiness = player.ReadinessUnattached
	s.paused = true
	s.ended = false
	s.failed = false
	s.active = false
	s.idlePolls = 0
	s.position = options.StartTime
	s.mu.Unlock()

	if _, err := client.Request("loadfile", url, "replace"); err != nil {
		s.mu.Lock()
		s.loaded = false
		s.mu.Unlock()
		return fmt.Errorf("failed to load %s: %w", url, err)
	}

	s.logger.Debug("source loaded", "url", url, "start", options.StartTime)
	return nil
}

// Play unpauses playback
func (s *Surface) Play(ctx context.Context) error {
	return s.setProperty("pause", false)
}

// Pause pauses playback
func (s *Surface) Pause(ctx context.Context) error {
	return s.setProperty("pause", true)
}

// Seek seeks to the specified position
func (s *Surface) Seek(ctx context.Context, position time.Duration) error {
	if err := s.setProperty("time-pos", position.Seconds()); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	s.mu.Lock()
	s.position = position
	s.mu.Unlock()
	return nil
}

// CurrentTime reads the playback position
func (s *Surface) CurrentTime(ctx context.Context) (time.Duration, error) {
	client, err := s.conn()
	if err != nil {
		return 0, err
	}
	result, err := client.Request("get_property", "time-pos")
	if err != nil {
		return 0, fmt.Errorf("mpv IPC error: %w", err)
	}
	seconds, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected time-pos value %v", result)
	}
	return seconds2duration(seconds), nil
}

// SetMuted mutes or unmutes audio
func (s *Surface) SetMuted(ctx context.Context, muted bool) error {
	return s.setProperty("mute", muted)
}

// SetVolume sets the volume (0-100)
func (s *Surface) SetVolume(ctx context.Context, volume int) error {
	return s.setProperty("volume", float64(volume))
}

// SetVisible minimizes or restores the window
func (s *Surface) SetVisible(ctx context.Context, visible bool) error {
	return s.setProperty("window-minimized", !visible)
}

// OnEvent sets the media event callback
func (s *Surface) OnEvent(callback func(event player.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = callback
}

// Close quits mpv and removes IPC resources
func (s *Surface) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping || s.client == nil && s.cmd == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	if s.cancel != nil {
		s.cancel()
	}
	client := s.client
	s.client = nil
	s.mu.Unlock()

	// gopv closes the connection itself once mpv exits
	if client != nil {
		done := make(chan struct{})
		go func() {
			_, _ = client.Request("quit")
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
		}
	}

	s.kill()
	return nil
}

func (s *Surface) kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
	if s.cmd != nil && s.cmd.Process != nil {
		// monitorProcess owns Wait
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.cleanupIPC()
}

// cleanupIPC removes the socket file (must be called with lock held)
func (s *Surface) cleanupIPC() {
	if s.ipcConfig != nil && s.ipcConfig.IsSocket {
		_ = os.Remove(s.ipcConfig.Address)
	}
	s.ipcConfig = nil
}

func (s *Surface) conn() (requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, fmt.Errorf("%s: %w", s.opts.Name, ErrNotStarted)
	}
	return s.client, nil
}

func (s *Surface) setProperty(name string, value any) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := client.Request("set_property", name, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

// monitorPlayback samples playback properties until ctx ends
func (s *Surface) monitorPlayback(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

const idleLimit = 20

// sample is one read of the properties the poller tracks
type sample struct {
	idle      bool
	paused    bool
	eof       bool
	position  time.Duration
	hasPos    bool
	duration  float64
	cacheIdle bool
}

func (s *Surface) read(client requester) (sample, error) {
	var smp sample
	var failures int

	get := func(name string) any {
		v, err := client.Request("get_property", name)
		if err != nil {
			failures++
			return nil
		}
		return v
	}

	if v, ok := get("idle-active").(bool); ok {
		smp.idle = v
	}
	if v, ok := get("pause").(bool); ok {
		smp.paused = v
	}
	if v, ok := get("eof-reached").(bool); ok {
		smp.eof = v
	}
	if v, ok := get("time-pos").(float64); ok {
		smp.position = seconds2duration(v)
		smp.hasPos = true
	}
	if v, ok := get("duration").(float64); ok {
		smp.duration = v
	}
	if v, ok := get("demuxer-cache-idle").(bool); ok {
		smp.cacheIdle = v
	}

	// Unavailable properties fail while a file is loading, but every one
	// failing means the connection is gone
	if failures == 6 {
		return smp, errors.New("IPC connection failed")
	}
	return smp, nil
}

// poll reads the current state once and emits events for what changed
func (s *Surface) poll() {
	s.mu.Lock()
	client := s.client
	loaded := s.loaded
	s.mu.Unlock()
	if client == nil || !loaded {
		return
	}

	smp, err := s.read(client)
	if err != nil {
		s.logger.Debug("poll failed", "error", err)
		return
	}

	events := s.diff(smp)

	s.mu.Lock()
	callback := s.onEvent
	s.mu.Unlock()
	if callback == nil {
		return
	}
	for _, ev := range events {
		callback(ev)
	}
}

// diff folds a sample into the recorded state and returns the resulting events
func (s *Surface) diff(smp sample) []player.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []player.Event
	emit := func(kind player.EventKind) {
		events = append(events, player.Event{Kind: kind, Position: s.position})
	}

	// With keep-open, mpv only returns to idle when a file failed to load.
	// A source that never leaves idle counts as failed after idleLimit polls.
	if smp.idle {
		s.idlePolls++
		if !s.failed && (s.active || s.idlePolls >= idleLimit) {
			s.failed = true
			events = append(events, player.Event{
				Kind:     player.EventError,
				Position: s.position,
				Err:      errors.New("mpv could not open the source"),
			})
		}
		return events
	}
	s.active = true

	if smp.hasPos && smp.position != s.position {
		s.position = smp.position
		emit(player.EventTimeUpdate)
	}

	if s.readiness < player.ReadinessMetadataLoaded && smp.duration > 0 {
		s.readiness = player.ReadinessMetadataLoaded
		emit(player.EventLoadedMetadata)
	}
	if s.readiness < player.ReadinessCanPlay && s.readiness >= player.ReadinessMetadataLoaded && smp.hasPos {
		s.readiness = player.ReadinessCanPlay
		emit(player.EventCanPlay)
	}
	if s.readiness == player.ReadinessCanPlay && smp.cacheIdle {
		s.readiness = player.ReadinessCanPlayThrough
		emit(player.EventCanPlayThrough)
	}

	if smp.paused != s.paused {
		s.paused = smp.paused
		if smp.paused {
			emit(player.EventPaused)
		} else {
			emit(player.EventPlaying)
		}
	}

	if smp.eof && !s.ended {
		s.ended = true
		emit(player.EventEnded)
	} else if !smp.eof {
		s.ended = false
	}

	return events
}

// monitorProcess reports mpv exiting while the surface is in use
func (s *Surface) monitorProcess(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	stopping := s.stopping
	callback := s.onEvent
	position := s.position
	s.mu.Unlock()

	if stopping {
		return
	}

	if err == nil {
		err = errors.New("mpv exited")
	}
	s.logger.Warn("mpv process exited unexpectedly", "error", err)
	if callback != nil {
		callback(player.Event{
			Kind:     player.EventError,
			Position: position,
			Err:      fmt.Errorf("mpv process exited unexpectedly: %w", err),
		})
	}
	_ = s.Close(context.Background())
}

// waitForIPC waits for the IPC endpoint to accept connections
func waitForIPC(ctx context.Context, ipcConfig *IPCConfig) error {
	// mpv.exe takes longer to create named pipes
	timeoutDuration := 5 * time.Second
	if ipcConfig.Type == IPCTCP || ipcConfig.Type == IPCNamedPipe {
		timeoutDuration = 10 * time.Second
	}

	timeout := time.After(timeoutDuration)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for IPC at %s after %v", ipcConfig.Address, timeoutDuration)
		case <-ticker.C:
			switch {
			case ipcConfig.IsSocket:
				if _, err := os.Stat(ipcConfig.Address); err == nil {
					// The socket file appears before mpv accepts on it
					time.Sleep(100 * time.Millisecond)
					return nil
				}
			case ipcConfig.Type == IPCTCP:
				conn, err := net.DialTimeout("tcp", ipcConfig.Address, 200*time.Millisecond)
				if err == nil {
					_ = conn.Close()
					return nil
				}
			case ipcConfig.Type == IPCNamedPipe:
				if isPipeReady(ipcConfig.Address) {
					return nil
				}
			}
		}
	}
}

func seconds2duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
