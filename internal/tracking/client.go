// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package tracking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fieldops/livetrack/internal/breaker"
	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/models"
)

// Fetcher reads the latest sample of a session.
type Fetcher interface {
	Latest(ctx context.Context, sessionID string) (models.Sample, error)
}

// maxResponseBytes bounds a location response body.
const maxResponseBytes = 64 * 1024

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *models.APIError `json:"error"`
}

// LocationClient talks to the livetrack HTTP API. Requests pass through a
// circuit breaker; server verdicts such as "not found" or "stale" do not
// count as failures.
type LocationClient struct {
	base    *url.URL
	http    *http.Client
	breaker *breaker.Breaker
}

// NewLocationClient builds a client for cfg.ServerURL.
func NewLocationClient(cfg config.ClientConfig) (*LocationClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server URL scheme must be http or https, got %q", base.Scheme)
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocationClient{
		base: base,
		http: &http.Client{Timeout: timeout},
		breaker: breaker.New("location-api", breaker.Settings{
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			IsSuccessful:        isServerVerdict,
		}),
	}, nil
}

func isServerVerdict(err error) bool {
	return err == nil ||
		errors.Is(err, models.ErrSessionNotFound) ||
		errors.Is(err, models.ErrStaleSample) ||
		errors.Is(err, models.ErrInvalidSample) ||
		errors.Is(err, models.ErrRateLimited)
}

func (c *LocationClient) endpoint(sessionID, suffix string) string {
	u := *c.base
	u.Path = c.base.Path + "/api/v1/sessions/" + url.PathEscape(sessionID) + suffix
	return u.String()
}

// StreamURL is the websocket push URL for a session.
func (c *LocationClient) StreamURL(sessionID string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/api/v1/sessions/" + url.PathEscape(sessionID) + "/stream"
	return u.String()
}

// Latest implements Fetcher. A session without a sample yields
// models.ErrSessionNotFound; transport trouble, unexpected statuses and an
// open breaker yield models.ErrTransientFetchFailure.
func (c *LocationClient) Latest(ctx context.Context, sessionID string) (models.Sample, error) {
	var sample models.Sample
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(sessionID, "/location"), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		env, status, err := c.do(req)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusOK:
			if err := json.Unmarshal(env.Data, &sample); err != nil {
				return fmt.Errorf("decode sample: %w", err)
			}
			return nil
		case http.StatusNotFound:
			return fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
		default:
			return statusError(status, env)
		}
	})
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.Sample{}, err
		}
		return models.Sample{}, fmt.Errorf("%w: %w", models.ErrTransientFetchFailure, err)
	}
	return sample, nil
}

// Report posts a sample on behalf of an agent. Server rejections map back to
// the matching sentinel errors.
func (c *LocationClient) Report(ctx context.Context, s models.Sample) error {
	body, err := json.Marshal(models.ReportFromSample(s))
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(s.SessionID, "/location"), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		env, status, err := c.do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrTransportUnavailable, err)
		}
		switch status {
		case http.StatusCreated, http.StatusOK:
			return nil
		case http.StatusConflict:
			return fmt.Errorf("%s: %w", apiMessage(env), models.ErrStaleSample)
		case http.StatusBadRequest:
			return fmt.Errorf("%s: %w", apiMessage(env), models.ErrInvalidSample)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", apiMessage(env), models.ErrRateLimited)
		case http.StatusNotFound:
			return fmt.Errorf("session %s: %w", s.SessionID, models.ErrSessionNotFound)
		default:
			return statusError(status, env)
		}
	})
}

// do sends req and decodes the envelope. A body that is not an envelope is
// tolerated for non-2xx statuses.
func (c *LocationClient) do(req *http.Request) (envelope, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return envelope{}, resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return env, resp.StatusCode, nil
}

func apiMessage(env envelope) string {
	if env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return "rejected"
}

func statusError(status int, env envelope) error {
	if env.Error != nil {
		return fmt.Errorf("unexpected status %d: %s: %s", status, env.Error.Code, env.Error.Message)
	}
	return fmt.Errorf("unexpected status %d", status)
}

// BreakerState exposes the breaker state for diagnostics.
func (c *LocationClient) BreakerState() string {
	return c.breaker.State()
}
