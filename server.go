package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ocupoint/salogger/pkg/acquire"
	"github.com/ocupoint/salogger/pkg/metrics"
	"github.com/ocupoint/salogger/pkg/plot"
)

const (
	clientSendBuffer = scrollbackLines + 256
	writeWait        = 10 * time.Second
)

type Client struct {
	conn *websocket.Conn
	send chan interface{}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		switch v := msg.(type) {
		case []byte:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
				return
			}
		default:
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// trySend drops the message when the client is not keeping up.
func (c *Client) trySend(msg interface{}) {
	select {
	case c.send <- msg:
	default:
	}
}

type server struct {
	cfg      Config
	ctrl     *acquire.Controller
	ui       *uiState
	renderer *plot.Renderer
	baseCtx  context.Context

	// owned by pump
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	upgrader websocket.Upgrader
}

func newServer(ctx context.Context, cfg Config, ctrl *acquire.Controller) *server {
	return &server{
		cfg:        cfg,
		ctrl:       ctrl,
		ui:         &uiState{},
		renderer:   plot.NewRenderer(0, 0),
		baseCtx:    ctx,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
}

// pump is the only reader of the controller's events and the only writer
// of the client set. It returns when ctx is done.
func (s *server) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range s.clients {
				delete(s.clients, c)
				close(c.send)
			}
			return

		case c := <-s.register:
			s.clients[c] = true
			for _, msg := range s.snapshot() {
				c.trySend(msg)
			}
			log.Info().Int("clients", len(s.clients)).Msg("Client connected")

		case c := <-s.unregister:
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
				log.Info().Int("clients", len(s.clients)).Msg("Client disconnected")
			}

		case ev := <-s.ctrl.Events():
			s.handleEvent(ev)
		}
	}
}

func (s *server) handleEvent(ev acquire.Event) {
	s.ui.apply(ev)
	s.broadcast(ev)

	if ev.Type != acquire.EventTrace {
		return
	}
	png, err := s.renderer.PNG(traceForPlot(ev.Trace))
	if err != nil {
		log.Error().Err(err).Msg("plot render failed")
		return
	}
	s.ui.setPlot(png)
	s.broadcast(png)
}

func (s *server) broadcast(msg interface{}) {
	for c := range s.clients {
		c.trySend(msg)
	}
}

// snapshot is what a newly connected client is sent before live events.
func (s *server) snapshot() []interface{} {
	st := s.ctrl.State()
	now := time.Now()
	msgs := []interface{}{acquire.Event{Type: acquire.EventState, Time: now, State: &st}}

	for _, line := range s.ui.Log() {
		line := line
		msgs = append(msgs, acquire.Event{Type: acquire.EventLog, Time: now, Log: &line})
	}

	s.ui.mu.RLock()
	trace, png := s.ui.lastTrace, s.ui.lastPlot
	s.ui.mu.RUnlock()
	if trace != nil {
		msgs = append(msgs, acquire.Event{Type: acquire.EventTrace, Time: now, Trace: trace})
	}
	if png != nil {
		msgs = append(msgs, png)
	}
	return msgs
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{conn: conn, send: make(chan interface{}, clientSendBuffer)}
	select {
	case s.register <- client:
	case <-s.baseCtx.Done():
		conn.Close()
		return
	}
	go client.writePump()

	// The UI is driven over HTTP; reads only detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case s.unregister <- client:
	case <-s.baseCtx.Done():
	}
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	templatesContent, _ := fs.Sub(templatesFS, "templates")
	tmpl, err := template.ParseFS(templatesContent, "*.html")
	if err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	data := struct {
		Address string
		Run     acquire.Request
	}{s.cfg.Address, s.cfg.Run}
	if err := tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Error().Err(err).Msg("render index")
	}
}

func (s *server) handlePlot(w http.ResponseWriter, r *http.Request) {
	png := s.ui.Plot()
	if png == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// routes builds the HTTP surface: the page, the typed API, the websocket
// and metrics.
func (s *server) routes() (http.Handler, huma.API) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	config := huma.DefaultConfig("FieldFox SA Logger API", "1.0.0")
	config.DocsPath = ""
	api := humachi.New(router, config)
	registerRoutes(api, newHandler(s.baseCtx, s.ctrl, s.ui, s.cfg))

	router.Get("/api/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		spec, err := api.OpenAPI().MarshalJSON()
		if err != nil {
			http.Error(w, "Failed to generate OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Write(spec)
	})

	router.Get("/", s.handleIndex)
	router.Get("/index.html", s.handleIndex)
	router.Get("/api/plot.png", s.handlePlot)
	router.Get("/ws", s.handleWS)
	router.Handle("/metrics", metrics.Handler())

	return router, api
}

func runServer(ctx context.Context, cfg Config, ctrl *acquire.Controller) error {
	s := newServer(ctx, cfg, ctrl)
	go s.pump(ctx)

	handler, _ := s.routes()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("FieldFox SA logger listening on http://localhost:%d", cfg.Port)
		log.Info().Str("instrument", cfg.Address).Str("data_dir", cfg.DataDir).Msg("defaults")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("Server exited")
	return nil
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
