package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ritzau/forward-chain/pkg/layout"
	"github.com/ritzau/forward-chain/pkg/legend"
	"github.com/ritzau/forward-chain/pkg/logging"
	"github.com/ritzau/forward-chain/pkg/model"
	"github.com/ritzau/forward-chain/pkg/pubsub"
)

//go:embed static/*
var staticFiles embed.FS

// ErrNoNetwork is returned by layout calls before a network has been set.
var ErrNoNetwork = errors.New("no network loaded")

// DragRequest is the body of the drag and release endpoints.
type DragRequest struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// CanvasRequest is the body of PUT /api/layout/canvas.
type CanvasRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// legendCacheSize bounds the number of cached attribute legends.
const legendCacheSize = 64

// legendKey ties a cached legend to the network generation it was derived from.
type legendKey struct {
	generation uint64
	attribute  string
}

// Server represents the web server
type Server struct {
	router       *mux.Router
	publisher    *pubsub.SSEPublisher
	tickInterval time.Duration

	// sessions live until Close
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	layoutOpts layout.Options
	network    *model.Network
	summary    any
	session    *layout.Session
	generation uint64

	legends *lru.Cache[legendKey, []legend.Entry]
}

// NewServer creates a new web server. Every network set on it gets a layout
// session using opts.
func NewServer(opts layout.Options) *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// status: keep the last 10, a new viewer only needs the current state
	ssePublisher.ConfigureTopic(pubsub.TopicStatus, pubsub.TopicConfig{
		Retain:   10,
		Delivery: pubsub.Queue,
	})

	// network and layout: only the newest value matters, also for slow viewers
	for _, topic := range []string{pubsub.TopicNetwork, pubsub.TopicLayout} {
		ssePublisher.ConfigureTopic(topic, pubsub.TopicConfig{
			Retain:   1,
			Delivery: pubsub.Latest,
		})
	}

	legends, err := lru.New[legendKey, []legend.Entry](legendCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		legends:      legends,
		router:       mux.NewRouter(),
		publisher:    ssePublisher,
		layoutOpts:   opts,
		tickInterval: layout.DefaultTickInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the request-id middleware.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// SetNetwork replaces the served network and starts a fresh layout session
// for it. The previous session is stopped.
func (s *Server) SetNetwork(net *model.Network, summary any) error {
	s.mu.RLock()
	opts := s.layoutOpts
	s.mu.RUnlock()

	engine, err := layout.NewEngine(net, opts)
	if err != nil {
		return fmt.Errorf("create layout engine: %w", err)
	}
	engine.Subscribe(func(snap layout.Snapshot) {
		if err := s.publisher.Publish(pubsub.TopicLayout, "tick", snap); err != nil {
			logging.Trace("layout publish failed", "error", err)
		}
	})
	session := layout.NewSession(engine, s.tickInterval)

	s.mu.Lock()
	old := s.session
	s.network = net
	s.summary = summary
	s.session = session
	s.generation++
	s.mu.Unlock()
	s.legends.Purge()

	if old != nil {
		old.Stop()
	}
	session.Start(s.ctx)

	components := 0
	for _, n := range net.Nodes {
		components = max(components, n.ComponentGroup+1)
	}
	return s.publisher.Publish(pubsub.TopicNetwork, "ready", pubsub.NetworkInfo{
		Nodes:      len(net.Nodes),
		Links:      len(net.Links),
		Components: components,
		Complete:   true,
	})
}

// SetLayoutOptions changes the options used for the next network.
func (s *Server) SetLayoutOptions(opts layout.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layoutOpts = opts
}

// PublishStatus publishes a pipeline status event
func (s *Server) PublishStatus(state, message string, step, total int) error {
	status := pubsub.Status{
		State:   state,
		Message: message,
		Step:    step,
		Total:   total,
	}
	return s.publisher.Publish(pubsub.TopicStatus, state, status)
}

func (s *Server) current() (*model.Network, any, *layout.Session) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network, s.summary, s.session
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/status", s.subscribeHandler(pubsub.TopicStatus)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/network", s.subscribeHandler(pubsub.TopicNetwork)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/layout", s.subscribeHandler(pubsub.TopicLayout)).Methods("GET")

	// API routes - more specific routes must come first
	s.router.HandleFunc("/api/network", s.handleNetwork).Methods("GET")
	s.router.HandleFunc("/api/attributes", s.handleAttributes).Methods("GET")
	s.router.HandleFunc("/api/legend/links", s.handleLinkLegend).Methods("GET")
	s.router.HandleFunc("/api/legend/{attribute}", s.handleLegend).Methods("GET")
	s.router.HandleFunc("/api/summary", s.handleSummary).Methods("GET")

	s.router.HandleFunc("/api/layout", s.handleLayout).Methods("GET")
	s.router.HandleFunc("/api/layout/drag/start", s.dragHandler(func(ctx context.Context, ls *layout.Session, req DragRequest) error {
		return ls.DragStart(ctx, req.ID)
	})).Methods("POST")
	s.router.HandleFunc("/api/layout/drag/move", s.dragHandler(func(ctx context.Context, ls *layout.Session, req DragRequest) error {
		return ls.DragMove(ctx, req.ID, req.X, req.Y)
	})).Methods("POST")
	s.router.HandleFunc("/api/layout/drag/end", s.dragHandler(func(ctx context.Context, ls *layout.Session, req DragRequest) error {
		return ls.DragEnd(ctx, req.ID)
	})).Methods("POST")
	s.router.HandleFunc("/api/layout/release", s.dragHandler(func(ctx context.Context, ls *layout.Session, req DragRequest) error {
		return ls.Release(ctx, req.ID)
	})).Methods("POST")
	s.router.HandleFunc("/api/layout/canvas", s.handleCanvas).Methods("PUT")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("static files missing", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) subscribeHandler(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

		// Send initial comment to establish connection (Safari compatibility)
		fmt.Fprintf(w, ": connected\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		// Create subscription
		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer sub.Close()
		logging.DebugContext(r.Context(), "SSE client subscribed", "topic", topic)

		// Stream events
		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := pubsub.WriteSSE(w, event); err != nil {
					logging.DebugContext(r.Context(), "error writing SSE event", "topic", topic, "error", err)
					return
				}
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}
			}
		}
	}
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	net, _, _ := s.current()
	if net == nil {
		net = model.NewNetwork()
	}
	writeJSON(w, r, http.StatusOK, net)
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	net, _, _ := s.current()
	if net == nil {
		writeJSON(w, r, http.StatusOK, []string{})
		return
	}
	writeJSON(w, r, http.StatusOK, legend.Attributes(net.Nodes))
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	attribute := mux.Vars(r)["attribute"]
	s.mu.RLock()
	net, generation := s.network, s.generation
	s.mu.RUnlock()
	if net == nil {
		writeJSON(w, r, http.StatusOK, []legend.Entry{})
		return
	}

	key := legendKey{generation: generation, attribute: attribute}
	entries, ok := s.legends.Get(key)
	if !ok {
		entries = legend.Derive(net.Nodes, attribute)
		s.legends.Add(key, entries)
	}
	writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleLinkLegend(w http.ResponseWriter, r *http.Request) {
	net, _, _ := s.current()
	if net == nil {
		writeJSON(w, r, http.StatusOK, []legend.Entry{})
		return
	}
	writeJSON(w, r, http.StatusOK, legend.LinkTypes(net.Links))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, summary, _ := s.current()
	if summary == nil {
		writeError(w, r, ErrNoNetwork)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	_, _, session := s.current()
	if session == nil {
		writeError(w, r, ErrNoNetwork)
		return
	}
	writeJSON(w, r, http.StatusOK, session.Snapshot())
}

func (s *Server) dragHandler(apply func(context.Context, *layout.Session, DragRequest) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DragRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		_, _, session := s.current()
		if session == nil {
			writeError(w, r, ErrNoNetwork)
			return
		}
		if err := apply(r.Context(), session, req); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, session.Snapshot())
	}
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	var req CanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	_, _, session := s.current()
	if session == nil {
		writeError(w, r, ErrNoNetwork)
		return
	}
	if err := session.SetCanvasBounds(r.Context(), req.Width, req.Height); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, session.Snapshot())
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WarnContext(r.Context(), "failed to encode response", "path", r.URL.Path, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, layout.ErrUnknownNode):
		status = http.StatusNotFound
	case errors.Is(err, layout.ErrInvalidBounds):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNoNetwork), errors.Is(err, layout.ErrSessionStopped):
		status = http.StatusServiceUnavailable
	}
	logging.DebugContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("web server shutdown", "error", err)
		}
	}()

	logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the layout session and disconnects SSE clients.
func (s *Server) Close() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	s.cancel()
	if session != nil {
		session.Stop()
	}
	s.publisher.Close()
}
