package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func listenAndServe(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}
	return serve(ctx, listener, handler, cfg.CertFilename, cfg.KeyFilename)
}

// serve handles requests on listener until ctx is cancelled, then shuts down gracefully. TLS is
// used when certFile and keyFile are both set.
func serve(ctx context.Context, listener net.Listener, handler http.Handler, certFile, keyFile string) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening on %s", listener.Addr())
		var err error
		if certFile != "" && keyFile != "" {
			err = server.ServeTLS(listener, certFile, keyFile)
		} else {
			err = server.Serve(listener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
