package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
)

// TapeServer serves the RunService over Connect (HTTP/JSON).
type TapeServer struct {
	worker *Worker
	mux    *http.ServeMux
}

// ServerOption configures a TapeServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	runTimeout time.Duration
}

// WithRunTimeout bounds each run served by the server.
func WithRunTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.runTimeout = d }
}

// New creates a TapeServer that executes runs on worker.
func New(worker *Worker, opts ...ServerOption) *TapeServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &TapeServer{
		worker: worker,
		mux:    http.NewServeMux(),
	}

	svc := NewRunService(worker, cfg.runTimeout)
	codec := connect.WithCodec(jsonCodec{})
	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run, codec))
	s.mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, svc.Check, codec))

	return s
}

// Handler returns the HTTP handler serving all procedures.
func (s *TapeServer) Handler() http.Handler {
	return s.mux
}

// HTTPServer returns an http.Server for addr; the caller owns its lifecycle.
func (s *TapeServer) HTTPServer(addr string) *http.Server {
	log.Noticef("tape run service listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, RunProcedure)
	return &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Stop shuts down the worker.
func (s *TapeServer) Stop() {
	s.worker.Stop()
}
