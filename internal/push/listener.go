package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// Listener keeps a websocket open to the push server and publishes the
// invalidations it receives to a Hub.
type Listener struct {
	url            string
	session        tenancy.Session
	hub            *Hub
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	logger         *logging.Logger
}

// NewListener builds a listener for url acting as session.
func NewListener(url string, session tenancy.Session, hub *Hub, logger *logging.Logger) *Listener {
	if logger == nil {
		logger = logging.Default()
	}
	return &Listener{
		url:            url,
		session:        session,
		hub:            hub,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: 5 * time.Second,
		logger:         logger,
	}
}

func (l *Listener) WithReconnectDelay(d time.Duration) *Listener {
	if d > 0 {
		l.reconnectDelay = d
	}
	return l
}

func (l *Listener) WithDialer(d *websocket.Dialer) *Listener {
	if d != nil {
		l.dialer = d
	}
	return l
}

// Run connects and reconnects until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("push connection lost, reconnecting", "error", err, "delay", l.reconnectDelay)

		timer := time.NewTimer(l.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	header := http.Header{}
	if auth := l.session.AuthorizationHeader(); auth != "" {
		header.Set("Authorization", auth)
	}
	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("push: dial: %w", err)
	}
	defer conn.Close()
	l.logger.Info("push connected", "org_id", l.session.OrgID)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("push: server closed connection")
			}
			return fmt.Errorf("push: read: %w", err)
		}

		var frame Invalidation
		if err := json.Unmarshal(data, &frame); err != nil {
			l.logger.Debug("push: ignoring malformed frame", "error", err)
			continue
		}
		switch frame.Type {
		case framePing:
			if err := conn.WriteJSON(map[string]string{"type": framePong}); err != nil {
				return fmt.Errorf("push: pong: %w", err)
			}
		case frameInvalidate:
			if frame.OrgID != "" && l.session.OrgID != "" && frame.OrgID != l.session.OrgID {
				continue
			}
			l.logger.Debug("push invalidation", "entity", frame.Entity, "id", frame.ID, "action", frame.Action)
			l.hub.Publish(frame)
		}
	}
}
