package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/KaraAliOsman/Trabajo-3/internal/broadcast"
	"github.com/KaraAliOsman/Trabajo-3/internal/config"
	"github.com/KaraAliOsman/Trabajo-3/internal/events"
	"github.com/KaraAliOsman/Trabajo-3/internal/logging"
	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
	"github.com/KaraAliOsman/Trabajo-3/internal/store"
	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}
	logOut, logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()
	gin.DefaultWriter = logOut
	gin.DefaultErrorWriter = logOut

	log.Println("Console service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Store open failed: %v", err)
	}
	defer st.Close()
	log.Printf("Store ready: %s %s", cfg.Store.Driver, cfg.Store.DSN)

	m := metrics.New()
	logger := log.Default()

	srv := &server{
		store:     st,
		chat:      broadcast.NewChannel(broadcast.NewLocalRegistry(logger), logger, m),
		metrics:   m,
		logger:    logger,
		cadence:   cfg.Telemetry.Cadence,
		missionID: cfg.Telemetry.MissionID,
		clock:     telemetry.RealClock{},
		seed:      cfg.Telemetry.Seed,
	}

	if cfg.AMQP.URL != "" {
		if pub, closeAMQP, err := startEvents(ctx, cfg.AMQP, st, logger, m); err != nil {
			log.Printf("RabbitMQ unavailable, continuing without telemetry tap: %v", err)
		} else {
			defer closeAMQP()
			go pub.Run(ctx)
			srv.tap = pub
		}
	}

	httpServer := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     srv.routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Println("Console service listening on", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Console service shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
}

// startEvents connects to RabbitMQ, declares the topology, starts the status
// consumer and returns the telemetry publisher. The caller runs the publisher.
func startEvents(ctx context.Context, cfg config.AMQPConfig, st store.Store, logger *log.Logger, m *metrics.Collectors) (*events.Publisher, func(), error) {
	conn, err := events.Dial(ctx, cfg.URL, cfg.ConnectAttempts, cfg.RetryDelay)
	if err != nil {
		return nil, nil, err
	}
	log.Println("Connected to RabbitMQ!")

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := events.DeclareTopology(pubCh, cfg.TelemetryExchange, cfg.StatusQueue); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	log.Println("RabbitMQ topology declared:", cfg.TelemetryExchange, cfg.StatusQueue)

	// consumer gets its own channel so publishes never wait behind deliveries
	consumeCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	consumer := events.NewStatusConsumer(consumeCh, cfg.StatusQueue, st, logger, m)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Status consumer stopped: %v", err)
		}
	}()
	log.Println("Background status update consumer started.")

	return events.NewPublisher(pubCh, cfg.TelemetryExchange, events.DefaultTapQueue, logger, m), func() { _ = conn.Close() }, nil
}
