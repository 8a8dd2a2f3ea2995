package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/server"
	"github.com/chazu/tapevm/store"
)

// serve runs the Connect run service until interrupted. Runs are recorded in
// the history store.
func serve(m *manifest.Manifest) error {
	timeout, err := m.RunTimeout()
	if err != nil {
		return err
	}

	history, err := store.Open(m.Store.Driver, m.StorePath())
	if err != nil {
		return err
	}
	defer history.Close()

	worker := server.NewWorker(server.Limits{
		TapeSize: m.Machine.TapeSize,
		MaxSteps: uint64(m.Machine.MaxSteps),
	}, history)
	srv := server.New(worker, server.WithRunTimeout(timeout))
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := srv.HTTPServer(m.Server.Addr)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Notice("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
