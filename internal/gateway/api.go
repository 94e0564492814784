package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/siteray/siteray-agent/internal/api"
	"github.com/siteray/siteray-agent/internal/messages"
	"github.com/siteray/siteray-agent/models"
)

// maxRequestBytes bounds message and host-event bodies.
const maxRequestBytes = 1 << 20

// buildHandler wires all REST, SSE and websocket routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", gw.handleRoot)

	// Health / status
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Popup and content-script messages
	mux.HandleFunc("POST /api/messages", gw.handleMessage)

	// Extension shell bridge
	mux.HandleFunc("POST /api/host/events", gw.handleHostEvent)
	mux.HandleFunc("GET /events", gw.handleEvents)

	// Scan progress relay
	mux.HandleFunc("GET /ws/scans/{id}/progress", gw.handleScanProgress)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "siteray gateway",
		"status": "running",
		"endpoints": []string{
			"GET /health",
			"GET /api/status",
			"POST /api/messages",
			"POST /api/host/events",
			"GET /events",
			"GET /ws/scans/{id}/progress",
		},
	})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.currentStatus(r.Context()))
}

// handleMessage answers one tagged message with the handler's result object.
// Handled messages always get 200, including validation failures.
func (gw *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !gw.admitPost(w, r) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, messages.Invalid())
		return
	}
	writeJSON(w, http.StatusOK, gw.coord.HandleRaw(r.Context(), body))
}

func (gw *Gateway) handleHostEvent(w http.ResponseWriter, r *http.Request) {
	if !gw.admitPost(w, r) {
		return
	}
	var ev HostEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := gw.host.Report(r.Context(), ev); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "event not delivered")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// admitPost rejects browser requests from origins outside
// gateway.allowed_origins and bodies not sent as application/json. Requests
// without an Origin header come from local tools.
func (gw *Gateway) admitPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Origin") != "" && !gw.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return false
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return false
	}
	return true
}

// handleEvents streams host commands to the extension shell.
func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	sub := gw.broadcaster.subscribe()
	defer gw.broadcaster.unsubscribe(sub)

	connected, err := encodeFrame(SSEEvent{Type: EventConnected, Payload: gw.currentStatus(r.Context())})
	if err != nil {
		return
	}
	_, _ = w.Write(connected)
	flusher.Flush()

	for {
		frames, ok := sub.next(r.Context().Done())
		if !ok {
			return
		}
		for _, frame := range frames {
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// handleScanProgress relays the remote progress stream of one scan to a
// websocket client. The token query parameter is optional; without it a
// stream token is requested with the stored session.
func (gw *Gateway) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	scanID := r.PathValue("id")
	if scanID == "" {
		writeError(w, http.StatusBadRequest, "scan id is required")
		return
	}
	client := gw.coord.API()

	token := r.URL.Query().Get("token")
	if token == "" {
		res, err := client.StreamToken(r.Context(), scanID)
		if err != nil {
			status := http.StatusBadGateway
			if api.IsAuthError(err) {
				status = http.StatusUnauthorized
			}
			writeError(w, status, api.UserMessage(err))
			return
		}
		if !res.Success || res.Token == "" {
			writeError(w, http.StatusBadGateway, "no stream token issued")
			return
		}
		token = res.Token
	}

	conn, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway: upgrading to websocket", "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	requestID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client only ever closes; a read error means it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("gateway: progress relay opened", "scan", scanID, "request", requestID)
	err = client.StreamProgress(ctx, scanID, token, func(ev models.ProgressEvent) error {
		if err := conn.WriteJSON(newProgressFrame(requestID, ev)); err != nil {
			cancel()
			return fmt.Errorf("writing to websocket: %w", err)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		slog.Warn("gateway: progress relay failed", "scan", scanID, "error", err)
		_ = conn.WriteJSON(progressFrame{RequestID: requestID, Type: "error", Error: api.UserMessage(err)})
	}
	slog.Debug("gateway: progress relay closed", "scan", scanID, "request", requestID)
}

func newProgressFrame(requestID string, ev models.ProgressEvent) progressFrame {
	f := progressFrame{RequestID: requestID, Type: ev.Type}
	if len(ev.Data) > 0 && json.Valid(ev.Data) {
		f.Data = json.RawMessage(ev.Data)
	}
	return f
}
