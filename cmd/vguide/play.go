package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/justchokingaround/vguide/internal/api"
	"github.com/justchokingaround/vguide/internal/catalog"
	"github.com/justchokingaround/vguide/internal/clipboard"
	"github.com/justchokingaround/vguide/internal/coordinator"
	"github.com/justchokingaround/vguide/internal/database"
	"github.com/justchokingaround/vguide/internal/eventloop"
	"github.com/justchokingaround/vguide/internal/httpclient"
	"github.com/justchokingaround/vguide/internal/metrics"
	"github.com/justchokingaround/vguide/internal/player/mpv"
	"github.com/justchokingaround/vguide/internal/policy"
	"github.com/justchokingaround/vguide/internal/stream"
)

// playCmd runs the coordinator with two mpv surfaces
var playCmd = &cobra.Command{
	Use:   "play <guide|url>",
	Short: "Play a catalog guide or a video URL",
	Long: `Play a guide from the catalog (by slug or ID) or a raw video URL.

The primary surface opens as a regular mpv window and the secondary as a
picture-in-picture window. Unless --no-api is given, the command API listens
on api.listen so a page or script can report viewport and overlay changes:

  curl -X POST localhost:8765/v1/context -d '{"device":"mobile","overlays":["chat"]}'
  curl -N localhost:8765/v1/events`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

// resolveCmd prints the playable form of a URL without starting a player
var resolveCmd = &cobra.Command{
	Use:   "resolve <guide|url>",
	Short: "Print the playable stream for a guide or URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerName, _ := cmd.Flags().GetString("provider")
		forceBaseline, _ := cmd.Flags().GetBool("force-baseline")

		target, err := lookupTarget(catalog.NewService(database.DB), args[0], providerName)
		if err != nil {
			return err
		}
		desc, err := newResolver().Resolve(target.url, target.provider, forceBaseline)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", target.url, err)
		}

		fmt.Printf("Provider: %s\n", desc.Provider)
		fmt.Printf("Form: %s\n", desc.Form)
		if desc.VideoID != "" {
			fmt.Printf("Video ID: %s\n", desc.VideoID)
		}
		if desc.Resolution > 0 {
			fmt.Printf("Resolution: %dp\n", desc.Resolution)
		}
		fmt.Printf("URL: %s\n", desc.ResolvedURL)

		if copyURL, _ := cmd.Flags().GetBool("copy"); copyURL {
			if err := clipboard.New(cfg.Advanced.ClipboardCommand, logger).Write(desc.ResolvedURL); err != nil {
				return fmt.Errorf("failed to copy URL: %w", err)
			}
			fmt.Printf("Copied to clipboard.\n")
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{playCmd, resolveCmd} {
		c.Flags().StringP("provider", "p", "", "stream provider: cloudflare, bunny, local (default: infer from URL)")
		c.Flags().Bool("force-baseline", false, "start on the baseline direct file instead of the adaptive manifest")
	}

	resolveCmd.Flags().BoolP("copy", "c", false, "copy the resolved URL to the clipboard")

	playCmd.Flags().String("device", "", "initial device class: desktop, tablet, mobile")
	playCmd.Flags().Int("width", 0, "initial viewport width in CSS pixels (overrides --device)")
	playCmd.Flags().StringSlice("overlay", nil, "initially open overlays: chat, human_chat, form, modal, orientation_warning")
	playCmd.Flags().String("user-agent", "", "viewer user agent used to detect autoplay restrictions")
	playCmd.Flags().Bool("no-api", false, "do not start the command API")
	playCmd.Flags().String("listen", "", "command API address (overrides api.listen)")
}

// target is what the play and resolve commands operate on
type target struct {
	url      string
	provider stream.Provider
	guide    *catalog.Guide
}

// lookupTarget treats arg as a guide slug or ID first and falls back to a URL
func lookupTarget(svc *catalog.Service, arg, providerName string) (*target, error) {
	provider := stream.Provider(providerName)
	switch provider {
	case stream.ProviderUnknown, stream.ProviderCloudflare, stream.ProviderBunny, stream.ProviderLocal:
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}

	guide, err := svc.Get(arg)
	switch {
	case err == nil:
		if provider == stream.ProviderUnknown {
			provider = guide.Provider
		}
		return &target{url: guide.VideoURL, provider: provider, guide: guide}, nil
	case errors.Is(err, catalog.ErrNotFound):
		if looksLikeSlug(arg) {
			if suggestions, _ := svc.Suggest(arg, 3); len(suggestions) > 0 {
				return nil, fmt.Errorf("guide %q not found, did you mean: %s", arg, strings.Join(suggestions, ", "))
			}
		}
		return &target{url: arg, provider: provider}, nil
	default:
		return nil, fmt.Errorf("failed to look up guide: %w", err)
	}
}

// looksLikeSlug reports whether arg cannot be a URL or file path
func looksLikeSlug(arg string) bool {
	return !strings.ContainsAny(arg, "/.:\\")
}

func newResolver() *stream.Resolver {
	return stream.NewResolver(stream.ResolverConfig{
		CloudflareCustomerCode: cfg.Stream.CloudflareCustomerCode,
		BunnyCDNHost:           cfg.Stream.BunnyCDNHost,
		BaselineResolution:     cfg.Stream.BaselineResolution,
	})
}

func coordinatorConfig(t *target) coordinator.Config {
	pb := cfg.Playback
	c := coordinator.Config{
		Policy: policy.Config{
			GestureValidity:  pb.GestureValidity,
			MuteRestoreDelay: pb.MuteRestoreDelay,
			CallTimeout:      pb.CallTimeout,
		},
		IgnorePauseWindow:  pb.IgnorePauseWindow,
		HardPauseWindow:    pb.HardPauseWindow,
		GestureGuardWindow: pb.GestureGuardWindow,
		Enforcement:        pb.Enforcement,
		SyncTolerance:      pb.SyncTolerance,
		Breakpoints: coordinator.Breakpoints{
			Mobile: cfg.Device.MobileBreakpoint,
			Tablet: cfg.Device.TabletBreakpoint,
		},
		Autoplay:      pb.Autoplay,
		StartMuted:    pb.StartMuted,
		UnmuteOnPlay:  pb.UnmuteOnPlay,
		Loop:          pb.Loop,
		FallbackAsset: pb.FallbackAsset,
		Referer:       cfg.Player.Referer,
		UserAgent:     cfg.Stream.UserAgent,
	}
	if t.guide != nil {
		c.Title = t.guide.Title
		if t.guide.FallbackAsset != "" {
			c.FallbackAsset = t.guide.FallbackAsset
		}
	}
	return c
}

func surfaceOptions(name string, pip bool) mpv.Options {
	return mpv.Options{
		Name:             name,
		Binary:           cfg.Player.Binary,
		PictureInPicture: pip,
		Geometry:         cfg.Player.SecondaryGeometry,
		OnTop:            cfg.Player.SecondaryOnTop,
		LoadUserConfig:   cfg.Player.LoadUserConfig,
		Debug:            cfg.Advanced.Debug,
		ExtraArgs:        cfg.Player.ExtraArgs,
		Logger:           logger,
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	providerName, _ := flags.GetString("provider")
	forceBaseline, _ := flags.GetBool("force-baseline")
	deviceName, _ := flags.GetString("device")
	width, _ := flags.GetInt("width")
	overlayNames, _ := flags.GetStringSlice("overlay")
	userAgent, _ := flags.GetString("user-agent")
	noAPI, _ := flags.GetBool("no-api")
	listen, _ := flags.GetString("listen")

	overlays, err := coordinator.ParseOverlays(overlayNames)
	if err != nil {
		return err
	}
	var device coordinator.DeviceClass
	if deviceName != "" {
		if device, err = coordinator.ParseDeviceClass(deviceName); err != nil {
			return err
		}
	}
	if userAgent == "" {
		userAgent = cfg.Device.UserAgent
	}
	if listen == "" {
		listen = cfg.API.Listen
	}

	svc := catalog.NewService(database.DB)
	t, err := lookupTarget(svc, args[0], providerName)
	if err != nil {
		return err
	}
	resolver := newResolver()
	desc, err := resolver.Resolve(t.url, t.provider, forceBaseline)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", t.url, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	primary, err := mpv.New(surfaceOptions("primary", false))
	if err != nil {
		return err
	}
	secondary, err := mpv.New(surfaceOptions("secondary", true))
	if err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, 15*time.Second)
	starts, sctx := errgroup.WithContext(startCtx)
	starts.Go(func() error { return primary.Start(sctx) })
	starts.Go(func() error { return secondary.Start(sctx) })
	err = starts.Wait()
	cancelStart()
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = primary.Close(closeCtx)
		_ = secondary.Close(closeCtx)
		return fmt.Errorf("failed to start surfaces: %w", err)
	}

	prober := httpclient.NewClient(httpclient.ClientConfig{
		Timeout:    cfg.Stream.ProbeTimeout,
		MaxRetries: cfg.Stream.ProbeRetries,
		UserAgent:  cfg.Stream.UserAgent,
		Debug:      cfg.Advanced.Debug,
		Logger:     logger,
	})
	if cfg.Player.Referer != "" {
		prober.SetHeader("Referer", cfg.Player.Referer)
	}

	m := metrics.New()
	loop := eventloop.New(64, logger)
	coord, err := coordinator.New(coordinator.Options{
		Config:    coordinatorConfig(t),
		Loop:      loop,
		Primary:   primary,
		Secondary: secondary,
		Ladder:    stream.NewLadder(cfg.Stream.Ladder, prober, logger),
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()

	events, unsubscribe := coord.Subscribe(cfg.API.EventBuffer)
	defer unsubscribe()

	if userAgent != "" {
		coord.SetUserAgent(userAgent)
	}
	switch {
	case width > 0:
		coord.NotifyViewport(width, overlays)
	case device != "":
		coord.NotifyContextChange(device, overlays)
	case overlays != 0:
		coord.NotifyContextChange(coordinator.DeviceDesktop, overlays)
	}
	if cfg.Playback.Volume != 100 {
		coord.SetVolume(cfg.Playback.Volume)
	}
	coord.LoadStream(desc)

	var sessionID uint
	if t.guide != nil {
		if sessionID, err = svc.StartSession(t.guide.ID, desc); err != nil {
			logger.Warn("failed to record session", "guide", t.guide.Slug, "error", err)
		}
	}

	fmt.Printf("Playing %s (%s)\n", displayName(t), desc.ResolvedURL)
	if !noAPI && cfg.API.Enabled {
		fmt.Printf("Command API: http://%s/v1\n", listen)
	}
	fmt.Printf("Press Ctrl+C to stop.\n")

	g, gctx := errgroup.WithContext(ctx)
	if !noAPI && cfg.API.Enabled {
		server := api.New(api.Config{
			Controller:  coord,
			Resolver:    resolver,
			Catalog:     svc,
			Metrics:     m,
			Logger:      logger,
			EventBuffer: cfg.API.EventBuffer,
		})
		g.Go(func() error { return server.ListenAndServe(gctx, listen) })
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				reportEvent(ev)
			}
		}
	})
	runErr := g.Wait()

	snap := coord.Snapshot()
	closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := coord.Close(closeCtx); err != nil {
		logger.Warn("failed to close surfaces", "error", err)
	}
	stopLoop()
	<-loopDone

	if sessionID != 0 {
		position, exhausted := sessionOutcome(snap)
		if err := svc.EndSession(sessionID, position, exhausted); err != nil {
			logger.Warn("failed to finish session", "error", err)
		}
	}
	return runErr
}

func displayName(t *target) string {
	if t.guide != nil {
		return t.guide.Title
	}
	return t.url
}

// reportEvent prints the events a user watching the terminal cares about
func reportEvent(ev coordinator.Event) {
	switch ev.Type {
	case coordinator.EventPlaybackStateChanged:
		logger.Debug("playback state changed", "state", ev.State)
	case coordinator.EventStreamError:
		fmt.Fprintf(os.Stderr, "Stream error on %s: %s\n", ev.Surface, ev.Message)
	case coordinator.EventResolutionExhausted:
		fmt.Fprintf(os.Stderr, "No playable resolution left for the %s surface\n", ev.Surface)
	}
}

// sessionOutcome reads the visible surface's position and whether any surface ran out of fallbacks
func sessionOutcome(snap coordinator.Snapshot) (time.Duration, bool) {
	var position time.Duration
	exhausted := false
	for _, s := range snap.Surfaces {
		if s.Exhausted {
			exhausted = true
		}
		if s.Visible {
			position = time.Duration(s.Position * float64(time.Second))
		}
	}
	return position, exhausted
}
