// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/urfave/negroni/v3"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/admission-server/pkg/config"
	"github.com/livekit/admission-server/version"
)

type AdmissionServer struct {
	config     *config.Config
	httpServer *http.Server
	sweeper    *Sweeper
	running    atomic.Bool
	doneChan   chan struct{}
}

func NewAdmissionServer(
	conf *config.Config,
	waitingRoomService *WaitingRoomService,
	sweeper *Sweeper,
) *AdmissionServer {
	middlewares := []negroni.Handler{
		// always the first
		negroni.NewRecovery(),
	}

	mux := http.NewServeMux()
	waitingRoomService.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", healthCheck)

	// the UI may be hosted anywhere; issued tokens are the security boundary
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	})

	return &AdmissionServer{
		config:  conf,
		sweeper: sweeper,
		httpServer: &http.Server{
			Handler: configureMiddlewares(corsHandler.Handler(mux), middlewares...),
		},
	}
}

func (s *AdmissionServer) IsRunning() bool {
	return s.running.Load()
}

func (s *AdmissionServer) Start() error {
	if s.running.Swap(true) {
		return fmt.Errorf("already running")
	}
	s.doneChan = make(chan struct{})

	listeners := make([]net.Listener, 0)
	for _, addr := range s.listenAddresses() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return err
		}
		listeners = append(listeners, ln)
	}

	s.sweeper.Start()

	for _, ln := range listeners {
		go func(l net.Listener) {
			_ = s.httpServer.Serve(l)
		}(ln)
	}

	logger.Infow("starting admission server", "addresses", s.listenAddresses(), "version", version.Version)

	<-s.doneChan

	// wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)

	return nil
}

func (s *AdmissionServer) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.sweeper.Stop()
	close(s.doneChan)
}

func (s *AdmissionServer) listenAddresses() []string {
	if len(s.config.BindAddresses) == 0 {
		return []string{fmt.Sprintf(":%d", s.config.Port)}
	}
	addrs := make([]string, 0, len(s.config.BindAddresses))
	for _, host := range s.config.BindAddresses {
		addrs = append(addrs, fmt.Sprintf("%s:%d", host, s.config.Port))
	}
	return addrs
}

func configureMiddlewares(handler http.Handler, middlewares ...negroni.Handler) *negroni.Negroni {
	n := negroni.New()
	for _, m := range middlewares {
		n.Use(m)
	}
	n.UseHandler(handler)
	return n
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("OK"))
}
