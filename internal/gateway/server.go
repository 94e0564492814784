// Package gateway is the local daemon the extension shell and the popup talk
// to. It hosts the background coordinator, relays its icon and bar commands
// to the shell over SSE and exposes the popup message contract over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/siteray/siteray-agent/internal/background"
	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/notify"
	"github.com/siteray/siteray-agent/internal/storage"
)

// Gateway is the long-running daemon that combines:
//   - the background Coordinator (tab events, badges, scan polling)
//   - a RemoteHost bridging the coordinator to the extension shell
//   - a REST + SSE + websocket HTTP server
type Gateway struct {
	cfg         *config.Config
	host        *RemoteHost
	coord       *background.Coordinator
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader

	mu        sync.RWMutex
	startedAt time.Time
	running   bool
}

// New creates a Gateway over kv. Call Start() to begin serving.
func New(cfg *config.Config, kv storage.KV) (*Gateway, error) {
	b := newBroadcaster()
	host := NewRemoteHost(b)
	deps := background.Deps{
		Config: *cfg,
		Host:   host,
		KV:     kv,
	}
	if d := notify.NewDispatcher(cfg.Notify); d.IsAnyConfigured() {
		deps.Notifier = d
		slog.Info("gateway: scan notifications enabled")
	}
	coord, err := background.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	gw := &Gateway{
		cfg:         cfg,
		host:        host,
		coord:       coord,
		broadcaster: b,
		startedAt:   time.Now(),
	}
	gw.upgrader = websocket.Upgrader{CheckOrigin: gw.checkOrigin}
	return gw, nil
}

// Coordinator returns the hosted coordinator.
func (gw *Gateway) Coordinator() *background.Coordinator { return gw.coord }

// Host returns the bridge to the extension shell.
func (gw *Gateway) Host() *RemoteHost { return gw.host }

// Handler returns the HTTP routes without binding a listener.
func (gw *Gateway) Handler() http.Handler { return buildHandler(gw) }

// Start runs the gateway until ctx is cancelled. It:
//  1. Runs the coordinator event loop in a background goroutine
//  2. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = config.DefaultPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	// 1. Coordinator.
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		gw.setRunning(true)
		if err := gw.coord.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("gateway: coordinator error", "error", err)
		}
		gw.setRunning(false)
	}()

	// 2. HTTP server.
	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-runCtx.Done()
		gw.host.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr)
	gw.broadcaster.send(SSEEvent{
		Type:    EventGatewayStarted,
		Payload: map[string]string{"addr": "http://" + addr},
	})

	err := srv.ListenAndServe()
	stop()
	<-coordDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (gw *Gateway) setRunning(v bool) {
	gw.mu.Lock()
	gw.running = v
	gw.mu.Unlock()
}

func (gw *Gateway) currentStatus(ctx context.Context) GatewayStatus {
	st := gw.coord.Status(ctx)
	gw.mu.RLock()
	running := gw.running
	gw.mu.RUnlock()
	return GatewayStatus{
		Running:        running,
		TrackedDomains: st.TrackedDomains,
		CacheEntries:   st.CacheEntries,
		Animations:     st.Animations,
		LoggedIn:       st.LoggedIn,
		Tabs:           gw.host.TabCount(),
		Subscribers:    gw.broadcaster.count(),
		UptimeSeconds:  int64(time.Since(gw.startedAt).Seconds()),
	}
}

// checkOrigin admits websocket and POST clients from
// gateway.allowed_origins. An empty list admits every origin, which is only
// safe because the listener is bound to localhost.
func (gw *Gateway) checkOrigin(r *http.Request) bool {
	allowed := gw.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range allowed {
		if o == origin {
			return true
		}
	}
	slog.Warn("gateway: origin rejected", "origin", origin, "path", r.URL.Path)
	return false
}
