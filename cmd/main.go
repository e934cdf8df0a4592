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
	"time"

	"go.uber.org/zap"

	"device-console/internal/backend"
	"device-console/internal/config"
	"device-console/internal/ingestion"
	"device-console/internal/logger"
	"device-console/internal/routes"
	"device-console/internal/state"
	"device-console/internal/usecase/fleet"
	"device-console/internal/usecase/user"
	pkgmqtt "device-console/pkg/mqtt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	env := cfg.Server.Environment
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("environment", env),
	)

	if cfg.Backend.BaseURL == "" {
		logger.Fatal("Backend configuration is missing. Please set BACKEND_URL environment variable.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := backend.NewClient(cfg.Backend, logger.Component("backend"))
	if cfg.Backend.Token == "" && cfg.Backend.LoginEmail != "" {
		loginCtx, loginCancel := context.WithTimeout(ctx, cfg.Backend.Timeout)
		if _, err := client.Login(loginCtx, cfg.Backend.LoginEmail, cfg.Backend.LoginSecret); err != nil {
			logger.Warn("Backend login failed, continuing without a token", zap.Error(err))
		}
		loginCancel()
	}

	store := state.NewStore()
	metrics := ingestion.NewMetricsTracker()
	processor := ingestion.NewProcessor(store, metrics, logger.Component("ingestion"))

	fleetService := fleet.NewService(client, store, cfg.Reconcile.LogPreloadLimit, logger.Component("fleet"))
	userService := user.NewService(client, logger.Component("user"))

	if cfg.Realtime.Enabled {
		session := ingestion.NewSocketSession(cfg.Realtime, processor, fleetService.ChannelKeys, logger.Component("realtime"))
		fleetService.SetAnnounce(session.Announce)
		go session.Run(ctx)
	}

	if cfg.MQTT.Enabled {
		bridge, err := ingestion.NewMQTTBridge(&ingestion.MQTTBridgeConfig{
			ClientConfig: &pkgmqtt.Config{
				Broker:               cfg.MQTT.Broker,
				ClientID:             cfg.MQTT.ClientID,
				Username:             cfg.MQTT.Username,
				Password:             cfg.MQTT.Password,
				CleanSession:         true,
				KeepAlive:            cfg.MQTT.KeepAlive,
				ConnectTimeout:       cfg.MQTT.ConnectTimeout,
				AutoReconnect:        true,
				MaxReconnectInterval: cfg.MQTT.MaxReconnectInterval,
			},
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, processor, logger.Component("mqtt"))
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		if err := bridge.Start(); err != nil {
			logger.Fatal("Failed to subscribe to MQTT topics", zap.Error(err))
		}
		defer bridge.Stop()
	}

	go func() {
		if err := fleetService.Load(ctx); err != nil {
			logger.Error("Initial fleet load failed", zap.Error(err))
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.Reconcile.StatusPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fleetService.RefreshStatuses(ctx, store.Devices())
			}
		}
	}()

	router := routes.SetupRoutes(cfg, routes.Deps{
		Fleet:   fleetService,
		Users:   userService,
		Metrics: metrics,
	})

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	addr := net.JoinHostPort(host, port)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Failed to shutdown server", zap.Error(err))
	}

	log.Println("Server exited properly")
}
