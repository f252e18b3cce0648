package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"speedliner/internal/domain/models"
	"speedliner/internal/usecase"
	xlogger "speedliner/pkg/logger"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second
	maxFrameSize        = 4096
)

// clientMessage is one form interaction sent by the browser.
type clientMessage struct {
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	On     bool            `json:"on,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// serverMessage carries either a snapshot or a protocol error.
type serverMessage struct {
	Type     string           `json:"type"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	Message  string           `json:"message,omitempty"`
}

var errUnknownMessage = errors.New("unknown message type")

// SessionHandler bridges one websocket to one quoting session.
type SessionHandler struct {
	logger   *xlogger.Logger
	hub      *usecase.SessionHub
	opts     Options
	upgrader websocket.Upgrader
}

func NewSessionHandler(logger *xlogger.Logger, hub *usecase.SessionHub, allowOrigins []string, opts Options) *SessionHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if opts.ClientCookie == "" {
		opts.ClientCookie = "speedliner_client"
	}
	if opts.SessionPing <= 0 {
		opts.SessionPing = defaultPingInterval
	}
	if opts.SessionWriteT <= 0 {
		opts.SessionWriteT = defaultWriteTimeout
	}
	return &SessionHandler{
		logger: logger,
		hub:    hub,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowOrigins),
		},
	}
}

func (h *SessionHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/session", h.Serve)
}

// Serve upgrades the request and runs the session until either side closes.
func (h *SessionHandler) Serve(c echo.Context) error {
	key := clientKey(c, h.opts.ClientCookie, h.opts.SecureCookie)
	creds := credentialsFrom(c.Request())

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), c.Response().Header())
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := h.hub.Open(ctx, key, creds)
	defer h.hub.Release(s)

	log := h.logger.With(xlogger.String("session_id", s.ID()))
	log.Debug("websocket session started")

	var writeMu sync.Mutex
	write := func(msg serverMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(h.opts.SessionWriteT))
		return conn.WriteJSON(msg)
	}

	if snap, err := s.Snapshot(ctx); err == nil {
		_ = write(serverMessage{Type: "snapshot", Snapshot: &snap})
	}

	// writer
	go func() {
		defer cancel()
		ticker := time.NewTicker(h.opts.SessionPing)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.Done():
				return
			case snap := <-s.Updates():
				if err := write(serverMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
					log.Debug("websocket write failed", xlogger.Error(err))
					return
				}
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.SessionWriteT))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxFrameSize)
	pongWait := 2 * h.opts.SessionPing
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", xlogger.Error(err))
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := decodeClientMessage(b)
		if err != nil {
			if werr := write(serverMessage{Type: "error", Message: err.Error()}); werr != nil {
				return nil
			}
			continue
		}
		// Form edits always reach the session so the last value of a burst wins.
		if rateLimited(ev) && !h.opts.EventLimit.Allow(key, time.Now()) {
			if werr := write(serverMessage{Type: "error", Message: "rate limited"}); werr != nil {
				return nil
			}
			continue
		}
		if err := s.Post(ev); err != nil {
			return nil
		}
	}
}

// decodeClientMessage maps a browser frame to a workflow event.
func decodeClientMessage(b []byte) (models.Event, error) {
	var m clientMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.New("malformed message")
	}

	switch m.Type {
	case "route":
		return models.RouteChanged{RouteID: rawString(m.Value)}, nil
	case "volume":
		return models.VolumeEdited{Raw: rawString(m.Value)}, nil
	case "collateral":
		return models.CollateralEdited{Raw: rawString(m.Value)}, nil
	case "express":
		return models.ExpressToggled{On: m.On}, nil
	case "calculate":
		return models.Recalculate{}, nil
	case "open_modal":
		return models.ModalRequested{}, nil
	case "dismiss":
		reason := models.DismissReason(m.Reason)
		switch reason {
		case models.DismissCancel, models.DismissEscape, models.DismissOverlay, models.DismissClose:
		default:
			reason = models.DismissClose
		}
		return models.ModalDismissed{Reason: reason}, nil
	case "confirm":
		return models.ConfirmClicked{}, nil
	}
	return nil, errUnknownMessage
}

// rateLimited reports whether ev counts against the per-client event limit.
func rateLimited(ev models.Event) bool {
	switch ev.(type) {
	case models.RouteChanged, models.VolumeEdited, models.CollateralEdited:
		return false
	}
	return true
}

// rawString accepts both "123" and 123 so numeric inputs survive either encoding.
func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

func originChecker(allow []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allow) == 0 {
			return true
		}
		for _, o := range allow {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
