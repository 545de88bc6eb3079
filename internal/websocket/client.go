// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package websocket

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/fieldops/livetrack/internal/broadcaster"
	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client is one push connection bound to one subscription.
type Client struct {
	conn      *websocket.Conn
	sub       *broadcaster.Subscription
	heartbeat time.Duration
	now       func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func newClient(conn *websocket.Conn, sub *broadcaster.Subscription, heartbeat time.Duration, now func() time.Time) *Client {
	return &Client{
		conn:      conn,
		sub:       sub,
		heartbeat: heartbeat,
		now:       now,
		stop:      make(chan struct{}),
	}
}

// Start runs the pumps in their own goroutines.
func (c *Client) Start() {
	metrics.PushConnections.Inc()
	go c.writePump()
	go c.readPump()
}

func (c *Client) shutdown() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// readPump only services control frames. Data sent by the peer is
// discarded; the stream is one-way.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Str("session_id", c.sub.SessionID()).Msg("Push connection read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	pings := time.NewTicker(pingPeriod)
	var beats <-chan time.Time
	if c.heartbeat > 0 {
		t := time.NewTicker(c.heartbeat)
		defer t.Stop()
		beats = t.C
	}
	defer func() {
		pings.Stop()
		c.sub.Close()
		_ = c.conn.Close()
		metrics.PushConnections.Dec()
	}()

	// A viewer of an idle session hears from the server right away.
	if beats != nil && len(c.sub.C()) == 0 {
		if err := c.writeFrame(models.MessageTypeHeartbeat, models.Heartbeat{Timestamp: c.now().UTC()}); err != nil {
			return
		}
	}

	for {
		select {
		case <-c.stop:
			return

		case s, ok := <-c.sub.C():
			if !ok {
				// Session closed or reaped.
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := c.writeFrame(models.MessageTypeLocation, s); err != nil {
				return
			}

		case <-beats:
			if err := c.writeFrame(models.MessageTypeHeartbeat, models.Heartbeat{Timestamp: c.now().UTC()}); err != nil {
				return
			}

		case <-pings.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeFrame(kind string, data interface{}) error {
	payload, err := json.Marshal(models.PushMessage{Type: kind, Data: data})
	if err != nil {
		logging.Error().Err(err).Str("type", kind).Msg("Failed to encode push frame")
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logging.Debug().Err(err).Str("session_id", c.sub.SessionID()).Msg("Push write failed")
		return err
	}
	metrics.PushMessagesSent.WithLabelValues(kind).Inc()
	return nil
}
