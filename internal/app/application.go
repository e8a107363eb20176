package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"roomhub/internal/api"
	"roomhub/internal/config"
	"roomhub/internal/hub"
	"roomhub/internal/room"
	"roomhub/internal/router"
	"roomhub/internal/storage"
	"roomhub/internal/websocket"
	"roomhub/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	store      interfaces.ImageStore
	registry   *room.Registry
	fanout     *hub.Hub
	dispatcher *router.Dispatcher
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Storage → Registry → Hub → Dispatcher → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Room settings; a bad pattern fails before anything is opened
	ruleset, err := room.NewRuleset(cfg.Room.Patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid room patterns: %w", err)
	}

	// STEP 2: Image store (foundation layer)
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image store: %w", err)
	}

	// STEP 3: Room registry, fan-out and dispatch
	registry := room.NewRegistry(room.Settings{
		Width:   cfg.Room.Width,
		Height:  cfg.Room.Height,
		Ruleset: ruleset,
	})
	fanout := hub.NewHub()
	dispatcher := router.NewDispatcher(fanout, store, cfg.Storage.Timeout)

	// STEP 4: WebSocket sessions
	wsHandler := websocket.NewHandler(registry, dispatcher, fanout, websocket.Options{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})

	// STEP 5: Query surface
	apiServer := api.NewServer(registry, store, fanout)

	// STEP 6: HTTP routing
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("GET /ws/{room...}", wsHandler.HandleWebSocket)
	mux.HandleFunc("GET /identity/", identityHandler(cfg.HTTP.StaticPath))
	mux.Handle("/", http.FileServer(http.Dir(cfg.HTTP.StaticPath)))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		fanout:     fanout,
		dispatcher: dispatcher,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// FUNCTIONAL DISCOVERY: Identity links are client-side routes; every one of
// them loads the same page
func identityHandler(staticPath string) http.HandlerFunc {
	index := filepath.Join(staticPath, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	}
}

// Start binds the listener and serves in the background
// Binding synchronously means a port conflict is reported here, not later
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("module", "app").Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Str("module", "app").Str("addr", listener.Addr().String()).Str("storage", app.config.Storage.Backend).Msg("roomhub started")
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: sessions → HTTP → storage
func (app *Application) Stop(ctx context.Context) error {
	log.Info().Str("module", "app").Int("sessions", app.wsHandler.ActiveSessions()).Msg("Shutting down roomhub")

	// STEP 1: Close every live session with GoingAway
	app.wsHandler.Shutdown()

	// STEP 2: Stop accepting new connections
	var shutdownErr error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Str("module", "app").Err(err).Msg("HTTP server shutdown error")
		shutdownErr = err
	}

	// STEP 3: Flush and close the image store
	if err := app.store.Close(); err != nil {
		log.Warn().Str("module", "app").Err(err).Msg("Image store shutdown error")
		shutdownErr = errors.Join(shutdownErr, err)
	}

	log.Info().Str("module", "app").Interface("fanout", app.fanout.GetStats()).Msg("roomhub shutdown complete")
	return shutdownErr
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Registry exposes the live room registry
func (app *Application) Registry() *room.Registry {
	return app.registry
}

// ShutdownTimeout bounds how long Stop may take when driven by a signal
const ShutdownTimeout = 30 * time.Second
