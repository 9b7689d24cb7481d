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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/shared/logging"
)

const (
	defaultPort           = 2469
	readinessCheckTimeout = 5 * time.Second
)

// Server exposes the prometheus metrics of the process together with liveness and readiness
// endpoints.
type Server struct {
	port            int
	pprof           bool
	readinessChecks []func(ctx context.Context) error
	listener        net.Listener
}

type Option func(*Server)

// WithPort sets the listening port, 0 picks a free one.
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithPprof enables the pprof debug endpoints
func WithPprof(enabled bool) Option {
	return func(s *Server) {
		s.pprof = enabled
	}
}

// WithReadinessCheck adds a check that must pass for /readyz to report ready.
func WithReadinessCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.readinessChecks = append(s.readinessChecks, check)
	}
}

// NewMetricsServer returns a Server listening on port 2469 unless configured otherwise.
func NewMetricsServer(opts ...Option) *Server {
	s := &Server{port: defaultPort}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) handler(log *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
		defer cancel()
		for _, check := range s.readinessChecks {
			if err := check(ctx); err != nil {
				log.Errorw("Readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// Start binds the port and serves in the background. It returns the function that shuts the
// server down.
func (s *Server) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.listener = listener
	httpServer := &http.Server{
		Handler:           s.handler(log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("Starting metrics HTTP server", zap.String("addr", listener.Addr().String()), zap.Bool("pprof", s.pprof))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Failed to serve metrics", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return httpServer.Shutdown, nil
}

// Addr returns the bound address once the server is started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
