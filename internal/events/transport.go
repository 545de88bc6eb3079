// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/fieldops/livetrack/internal/config"
)

// Driver names.
const (
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// Transport owns the watermill publisher and subscriber for one process.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	driver     string
}

// NewTransport connects the configured driver. url overrides
// cfg.NATS.URL when non-empty, which is how an embedded server's client URL
// is passed in.
func NewTransport(cfg config.EventsConfig, url string, logger watermill.LoggerAdapter) (*Transport, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryTransport(logger), nil
	case DriverNATS, "":
		if url == "" {
			url = cfg.NATS.URL
		}
		return newNATSTransport(cfg, url, logger)
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// NewMemoryTransport returns an in-process transport. Every subscriber
// receives every message.
func NewMemoryTransport(logger watermill.LoggerAdapter) *Transport {
	if logger == nil {
		logger = NewLoggerAdapter()
	}
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return &Transport{Publisher: ch, Subscriber: ch, driver: DriverMemory}
}

func natsOptions(cfg config.NATSConfig, role string, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("livetrack-" + role),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"role": role})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"role": role,
				"url":  nc.ConnectedUrl(),
			})
		}),
	}
}

func newNATSTransport(cfg config.EventsConfig, url string, logger watermill.LoggerAdapter) (*Transport, error) {
	publishTimeout := cfg.NATS.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}

	pubJS := wmNats.JetStreamConfig{Disabled: !cfg.NATS.JetStream}
	subJS := wmNats.JetStreamConfig{Disabled: !cfg.NATS.JetStream}
	if cfg.NATS.JetStream {
		pubJS.AutoProvision = true
		pubJS.TrackMsgId = true
		pubJS.PublishOptions = []natsgo.PubOpt{
			natsgo.RetryAttempts(3),
			natsgo.RetryWait(100 * time.Millisecond),
			natsgo.AckWait(publishTimeout),
		}
		subJS.AutoProvision = true
		subJS.DurablePrefix = cfg.InstanceID
		subJS.SubscribeOptions = []natsgo.SubOpt{natsgo.DeliverNew()}
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions(cfg.NATS, "publisher", logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   pubJS,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	// No queue group: every instance must see every sample.
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: "",
		SubscribersCount: 1,
		AckWaitTimeout:   publishTimeout,
		CloseTimeout:     publishTimeout,
		NatsOptions:      natsOptions(cfg.NATS, "subscriber", logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        subJS,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Transport{Publisher: pub, Subscriber: sub, driver: DriverNATS}, nil
}

// Driver returns the driver name.
func (t *Transport) Driver() string {
	return t.driver
}

// Close closes the subscriber then the publisher.
func (t *Transport) Close() error {
	var errs []error
	if err := t.Subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}
	if t.driver != DriverMemory {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
