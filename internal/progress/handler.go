package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Observer is told when viewers attach and detach.
type Observer interface {
	IncProgressSubscribers()
	DecProgressSubscribers()
}

// Handler serves the progress stream over server-sent events and websockets.
type Handler struct {
	broker    *Broker
	log       *logger.Logger
	keepalive time.Duration
	upgrader  websocket.Upgrader
	observer  Observer
}

// NewHandler creates a Handler. allowedOrigins restricts websocket
// upgrades; "*" or an empty list allows any origin.
func NewHandler(broker *Broker, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	h := &Handler{
		broker:    broker,
		log:       log.WithComponent("progress"),
		keepalive: 15 * time.Second,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetObserver installs o. Call before serving.
func (h *Handler) SetObserver(o Observer) {
	h.observer = o
}

func (h *Handler) attach() func() {
	if h.observer == nil {
		return func() {}
	}
	h.observer.IncProgressSubscribers()
	return h.observer.DecProgressSubscribers
}

// ServeSSE handles GET /api/download-progress/{id}.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	sub, err := h.broker.Subscribe(id)
	if err != nil {
		apperrors.WriteError(w, apperrors.GetRequestID(ctx), apperrors.DownloadNotFound())
		return
	}
	defer h.broker.Unsubscribe(sub)
	defer h.attach()()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	send := func(ev Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub.Events():
			if err := send(ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		case <-sub.Done():
			drain(sub, send)
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ServeWS handles GET /api/ws/download-progress/{id}. Events are sent as
// JSON text frames.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if !h.broker.Known(id) {
		apperrors.WriteError(w, apperrors.GetRequestID(ctx), apperrors.DownloadNotFound())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", map[string]interface{}{"download_id": id, "error": err.Error()})
		return
	}
	defer conn.Close()

	sub, err := h.broker.Subscribe(id)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "download not found"),
			time.Now().Add(writeWait))
		return
	}
	defer h.broker.Unsubscribe(sub)
	defer h.attach()()

	// The read pump only handles control frames and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev Event) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}
	finish := func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub.Events():
			if err := send(ev); err != nil {
				return
			}
			if ev.Terminal() {
				finish()
				return
			}
		case <-sub.Done():
			drain(sub, send)
			finish()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain flushes events buffered before the stream ended.
func drain(sub *Subscription, send func(Event) error) {
	for {
		select {
		case ev := <-sub.Events():
			if err := send(ev); err != nil || ev.Terminal() {
				return
			}
		default:
			return
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(strings.TrimRight(o, "/"), origin) {
				return true
			}
		}
		return false
	}
}
