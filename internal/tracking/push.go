// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package tracking

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/models"
)

// PushMessage is one decoded frame of the push channel. Sample is nil for
// heartbeats.
type PushMessage struct {
	Type   string
	Sample *models.Sample
	At     time.Time
}

// PushConn is an established push channel. Read blocks until the next frame
// and returns an error once the channel is unusable. Close unblocks Read.
type PushConn interface {
	Read() (PushMessage, error)
	Close() error
}

// PushDialer opens push channels.
type PushDialer interface {
	Dial(ctx context.Context, sessionID string) (PushConn, error)
}

// URLResolver maps a session to its websocket URL. *LocationClient
// satisfies it.
type URLResolver interface {
	StreamURL(sessionID string) string
}

// PushClient dials the websocket push channel with gorilla/websocket.
// Dials are paced by a token bucket so a flapping server is not hammered
// with handshakes.
type PushClient struct {
	urls        URLResolver
	dialer      *websocket.Dialer
	limiter     *rate.Limiter
	readTimeout time.Duration
}

// NewPushClient creates a dialer. readTimeout is the longest silence
// tolerated on an open channel; it should exceed the server heartbeat
// interval.
func NewPushClient(urls URLResolver, readTimeout time.Duration) *PushClient {
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	return &PushClient{
		urls: urls,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 3),
		readTimeout: readTimeout,
	}
}

// Dial implements PushDialer.
func (p *PushClient) Dial(ctx context.Context, sessionID string) (PushConn, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("dial push for %s: %w: %w", sessionID, models.ErrTransportUnavailable, err)
	}
	conn, resp, err := p.dialer.DialContext(ctx, p.urls.StreamURL(sessionID), nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("dial push for %s: %w", sessionID, models.ErrSessionNotFound)
			}
			return nil, fmt.Errorf("dial push for %s: status %d: %w", sessionID, resp.StatusCode, models.ErrTransportUnavailable)
		}
		return nil, fmt.Errorf("dial push for %s: %w: %w", sessionID, models.ErrTransportUnavailable, err)
	}
	conn.SetReadLimit(64 * 1024)
	return &wsConn{conn: conn, readTimeout: p.readTimeout}, nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Read skips frames of unknown type. Pings are answered by gorilla's default
// ping handler while reading.
func (c *wsConn) Read() (PushMessage, error) {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return PushMessage{}, fmt.Errorf("%w: %w", models.ErrTransportUnavailable, err)
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return PushMessage{}, fmt.Errorf("%w: %w", models.ErrTransportUnavailable, err)
		}

		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logging.Debug().Err(err).Msg("Ignoring undecodable push frame")
			continue
		}
		switch frame.Type {
		case models.MessageTypeLocation:
			var s models.Sample
			if err := json.Unmarshal(frame.Data, &s); err != nil {
				logging.Debug().Err(err).Msg("Ignoring malformed location frame")
				continue
			}
			return PushMessage{Type: frame.Type, Sample: &s, At: time.Now()}, nil
		case models.MessageTypeHeartbeat:
			return PushMessage{Type: frame.Type, At: time.Now()}, nil
		}
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
