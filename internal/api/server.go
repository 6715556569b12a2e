package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justchokingaround/vguide/internal/catalog"
	"github.com/justchokingaround/vguide/internal/coordinator"
	"github.com/justchokingaround/vguide/internal/metrics"
	"github.com/justchokingaround/vguide/internal/stream"
)

// Controller is the command and event surface of the playback coordinator
type Controller interface {
	Play()
	Pause()
	Restart()
	SetMuted(muted bool)
	SetVolume(volume int)
	ShowSecondarySurface()
	HideSecondarySurface()
	NotifyContextChange(device coordinator.DeviceClass, overlays coordinator.Overlay)
	NotifyViewport(width int, overlays coordinator.Overlay)
	LoadStream(desc stream.Descriptor)
	SetUserAgent(ua string)
	Subscribe(buffer int) (<-chan coordinator.Event, func())
	Snapshot() coordinator.Snapshot
}

// Resolver turns stored video URLs into playable descriptors
type Resolver interface {
	Resolve(raw string, provider stream.Provider, forceBaseline bool) (stream.Descriptor, error)
}

// Config wires the server to its collaborators. Catalog and Metrics are optional.
type Config struct {
	Controller  Controller
	Resolver    Resolver
	Catalog     *catalog.Service
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	EventBuffer int
	// KeepAlive is the interval between SSE comments on idle streams
	KeepAlive time.Duration
}

// Server is the local HTTP command API
type Server struct {
	router chi.Router
	cfg    Config
	logger *slog.Logger
}

// New builds the router
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 32
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware(cfg.Logger))
	r.Use(metrics.RequestMiddleware(cfg.Metrics))

	s := &Server{router: r, cfg: cfg, logger: cfg.Logger}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/play", s.command(s.cfg.Controller.Play))
		r.Post("/pause", s.command(s.cfg.Controller.Pause))
		r.Post("/restart", s.command(s.cfg.Controller.Restart))
		r.Post("/secondary/show", s.command(s.cfg.Controller.ShowSecondarySurface))
		r.Post("/secondary/hide", s.command(s.cfg.Controller.HideSecondarySurface))
		r.Post("/mute", s.handleMute)
		r.Post("/volume", s.handleVolume)
		r.Post("/context", s.handleContext)
		r.Post("/stream", s.handleStream)
		r.Post("/platform", s.handlePlatform)
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)

		if s.cfg.Catalog != nil {
			r.Get("/guides", s.handleListGuides)
			r.Get("/guides/{slug}", s.handleGetGuide)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accepted is returned for commands; they run on the coordinator loop after the response
type accepted struct {
	Status string `json:"status"`
}

func (s *Server) command(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn()
		WriteJSON(w, http.StatusAccepted, accepted{Status: "accepted"})
	}
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Muted == nil {
		WriteError(w, http.StatusBadRequest, "muted is required")
		return
	}
	s.cfg.Controller.SetMuted(*req.Muted)
	WriteJSON(w, http.StatusAccepted, accepted{Status: "accepted"})
}

type volumeRequest struct {
	Volume *int `json:"volume"`
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Volume == nil || *req.Volume < 0 || *req.Volume > 100 {
		WriteError(w, http.StatusBadRequest, "volume must be within 0-100")
		return
	}
	s.cfg.Controller.SetVolume(*req.Volume)
	WriteJSON(w, http.StatusAccepted, accepted{Status: "accepted"})
}

type contextRequest struct {
	Device   string   `json:"device"`
	Width    int      `json:"width"`
	Overlays []string `json:"overlays"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !decode(w, r, &req) {
		return
	}

	overlays, err := coordinator.ParseOverlays(req.Overlays)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case req.Device != "":
		device, err := coordinator.ParseDeviceClass(req.Device)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.cfg.Controller.NotifyContextChange(device, overlays)
	case req.Width > 0:
		s.cfg.Controller.NotifyViewport(req.Width, overlays)
	default:
		WriteError(w, http.StatusBadRequest, "device or width is required")
		return
	}
	WriteJSON(w, http.StatusAccepted, accepted{Status: "accepted"})
}

type streamRequest struct {
	URL           string `json:"url"`
	Provider      string `json:"provider"`
	Guide         string `json:"guide"`
	ForceBaseline bool   `json:"force_baseline"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if !decode(w, r, &req) {
		return
	}

	raw, provider := req.URL, stream.Provider(req.Provider)
	if req.Guide != "" {
		if s.cfg.Catalog == nil {
			WriteError(w, http.StatusBadRequest, "guide catalog is not configured")
			return
		}
		guide, err := s.cfg.Catalog.Get(req.Guide)
		if errors.Is(err, catalog.ErrNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			s.logger.Error("guide lookup failed", "guide", req.Guide, "error", err)
			WriteError(w, http.StatusInternalServerError, "guide lookup failed")
			return
		}
		raw, provider = guide.VideoURL, guide.Provider
	}
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "url or guide is required")
		return
	}

	desc, err := s.cfg.Resolver.Resolve(raw, provider, req.ForceBaseline)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.cfg.Controller.LoadStream(desc)
	WriteJSON(w, http.StatusAccepted, desc)
}

type platformRequest struct {
	UserAgent string `json:"user_agent"`
}

func (s *Server) handlePlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if !decode(w, r, &req) {
		return
	}
	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	s.cfg.Controller.SetUserAgent(ua)
	WriteJSON(w, http.StatusAccepted, accepted{Status: "accepted"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.cfg.Controller.Snapshot())
}

// handleEvents streams coordinator events as server-sent events. The first
// message is the current state snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, cancel := s.cfg.Controller.Subscribe(s.cfg.EventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_, _ = io.WriteString(w, "retry: 2000\n\n")
	if err := writeEvent(w, "state", s.cfg.Controller.Snapshot()); err != nil {
		return
	}
	_ = rc.Flush()

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, string(ev.Type), ev); err != nil {
				return
			}
			_ = rc.Flush()
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func (s *Server) handleListGuides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guides, err := s.cfg.Catalog.List(catalog.FilterOptions{
		Language:    q.Get("language"),
		Provider:    stream.Provider(q.Get("provider")),
		SearchQuery: q.Get("q"),
		SortBy:      catalog.SortOrder(q.Get("sort")),
	})
	if err != nil {
		s.logger.Error("listing guides failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "listing guides failed")
		return
	}
	WriteJSON(w, http.StatusOK, guides)
}

func (s *Server) handleGetGuide(w http.ResponseWriter, r *http.Request) {
	guide, err := s.cfg.Catalog.Get(chi.URLParam(r, "slug"))
	if errors.Is(err, catalog.ErrNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("guide lookup failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "guide lookup failed")
		return
	}
	WriteJSON(w, http.StatusOK, guide)
}

// ListenAndServe serves the API on addr until ctx ends, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// SSE streams end with ctx instead of holding Shutdown open
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("command API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}
