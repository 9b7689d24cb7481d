/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package nats connects to the NATS server that backs the jetstream timer store.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/logging"
)

// Client holds one NATS connection and its JetStream context.
type Client struct {
	nc    *nats.Conn
	jsCtx nats.JetStreamContext
	log   *zap.SugaredLogger
}

// NewNATSClient connects to url. natsOptions are applied after the defaults.
func NewNATSClient(ctx context.Context, url string, natsOptions ...nats.Option) (*Client, error) {
	log := logging.FromContext(ctx)
	opts := []nats.Option{
		// if max reconnects is set to -1, it will try to reconnect forever
		nats.MaxReconnects(-1),
		// every three seconds we will try to ping the server, if we don't get a pong back
		// after two attempts, we will consider the connection lost and try to reconnect
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats default: error occurred for subscription", zap.Error(err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("Nats default: connection closed")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Errorw("Nats default: disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats default: reconnected")
		}),
		// Write (and flush) timeout
		nats.FlusherTimeout(10 * time.Second),
	}
	opts = append(opts, natsOptions...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", url, err)
	}
	jsCtx, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create to nats jetstream context: %w", err)
	}
	return &Client{nc: nc, jsCtx: jsCtx, log: log}, nil
}

// JetStreamContext returns the JetStream context of the connection.
func (c *Client) JetStreamContext() nats.JetStreamContext {
	return c.jsCtx
}

// Close closes the NATS client
func (c *Client) Close() {
	c.nc.Close()
}
