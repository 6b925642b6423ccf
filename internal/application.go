package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pairplay/roomrelay/internal/broker"
	"github.com/pairplay/roomrelay/internal/config"
	"github.com/pairplay/roomrelay/internal/discovery"
	"github.com/pairplay/roomrelay/transport/rest"
	"github.com/pairplay/roomrelay/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	registry := broker.NewRegistry(logger)

	// LAN peer discovery is a collaborator of the embedding layer; the
	// broker itself never consumes it.
	if conf.Discovery.Enabled {
		service := discovery.NewMulticast(logger, conf.Discovery.Group, conf.Discovery.Interval)
		if err := service.Start(ctx, conf.Discovery.Identity); err != nil {
			return fmt.Errorf("could not start discovery service: %w", err)
		}

		defer func() {
			if err := service.Stop(); err != nil {
				log.Error("could not stop discovery service", "error", err)
			}
		}()
	}

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, registry)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err := <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
