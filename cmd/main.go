package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"groupchat/contract"
	"groupchat/infrastructure/grpc/server"
	"groupchat/infrastructure/web"
	"groupchat/infrastructure/ws"
	"groupchat/internal"
	"groupchat/moderation"
	"groupchat/repositories"
	"groupchat/runtime"
	"groupchat/runtime/workers"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until a signal arrives and then
// shuts down in reverse order. Deferred cleanups run before main exits.
func run() error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	store, closeStore, err := openStore(config, log)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, registry)
	handler := runtime.NewProtocolHandler(log, registry, store, broadcaster)

	if words := config.Words(); len(words) > 0 {
		char, _ := internal.CharacterRune(config.CensorCharacter)
		moderator, err := moderation.NewModerator(words, char, log)
		if err != nil {
			return fmt.Errorf("moderator build failed: %w", err)
		}
		handler.WithContentFilter(moderator)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewHealthMonitoringWorker(log, registry, store, config.MetricInterval))
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	socket := ws.NewServer(log, handler, ws.Options{
		BufferSize:      config.ConnectionBufferSize,
		WriteTimeout:    config.WriteTimeout,
		PingInterval:    config.PingInterval,
		MaxMessageBytes: config.MaxMessageBytes,
	})
	socketServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.WSPort),
		Handler: web.NewSocketRouter(log, socket),
	}
	pageServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
		Handler: web.NewPageRouter(log, web.NewPages(log, config.SocketURL(), registry, store)),
	}

	healthServer := server.NewHealthServer(log)
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}

	errChan := make(chan error, 3)
	for _, srv := range []*http.Server{socketServer, pageServer} {
		go func() {
			log.Info("Starting HTTP server", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("HTTP server %s: %w", srv.Addr, err)
			}
		}()
	}
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	healthServer.SetServing()
	log.Info("Group chat ready", "ws", config.SocketURL(), "pages", pageServer.Addr, "grpc", grpcAddress)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failed, shutting down", "error", runErr)
	}

	healthServer.SetNotServing()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := pageServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Page server shutdown", "error", err)
	}
	// Hijacked WebSocket sessions are not tracked by http.Server.
	socket.Shutdown()
	if err := socketServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Socket server shutdown", "error", err)
	}
	sup.Stop()
	<-supDone
	healthServer.Stop()
	log.Info("Program stopped cleanly")
	return runErr
}

// openStore picks the message log backend. Badger runs in memory only:
// history never outlives the process.
func openStore(config internal.Config, log *slog.Logger) (contract.IMessageStore, func(), error) {
	if config.MessageStore == internal.StoreMemory {
		return repositories.NewMessageStore(log), func() {}, nil
	}

	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, nil, fmt.Errorf("database opening failed: %w", err)
	}
	store, err := repositories.NewBadgerMessageStore(db, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("message store failed: %w", err)
	}
	return store, func() {
		log.Info("Closing BadgerDB...")
		_ = store.Close()
		_ = db.Close()
	}, nil
}
