// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/envimon/hub/api"
	"github.com/envimon/hub/internal/auth"
	"github.com/envimon/hub/internal/config"
	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/hubservice"
	"github.com/envimon/hub/internal/liveness"
	"github.com/envimon/hub/internal/monitoring"
	"github.com/envimon/hub/internal/repository/postgres"
	"github.com/envimon/hub/internal/repository/timescale"
	"github.com/envimon/hub/internal/telemetry"
	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

// Server represents our HTTP server
type Server struct {
	config     *config.Config
	srv        *http.Server
	hubservice *hubservice.HubService
	tracker    *liveness.Tracker
	monitoring *monitoring.Service
	stopSweep  context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config: cfg,
		srv:    srv,
	}
}

// Start wires the service graph and begins listening for requests
func (s *Server) Start() error {
	s.monitoring = monitoring.NewService(monitoring.Config{
		LogLevel: s.config.Monitoring.LogLevel,
	})

	tokens := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL, s.config.Auth.Issuer)
	authSvc := s.initializeServices(tokens)
	s.setupLivenessHandlers()

	// Sweep loop runs until shutdown cancels it
	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	go s.tracker.Run(sweepCtx)

	router := api.NewRouter(s.hubservice, authSvc, tokens)
	s.srv.Handler = handlers.RecoveryHandler()(handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(router))

	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down server...")
	s.stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

// initializeServices builds the repository and service graph. Any failure
// here is fatal; the process has nothing to serve without its stores.
func (s *Server) initializeServices(tokens *auth.TokenService) *auth.Service {
	tsdb := initTimescaleDB(s.config.Database.Telemetry)
	appDB := initAppDB(s.config.Database.AppDB)

	companies := postgres.NewCompanyRepository(appDB)
	groups := postgres.NewSensorGroupRepository(appDB)
	sensors := postgres.NewSensorRepository(appDB)
	users := postgres.NewUserRepository(appDB)

	registry := telemetry.NewRegistry()
	telemetryStore, err := timescale.NewTelemetryRepository(tsdb, registry)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to initialize telemetry store: %v", err)
	}
	router := telemetry.NewRouter(sensors, telemetryStore, registry)

	publisher := liveness.NewRedisPublisher(initRedis(s.config.Redis), s.config.Redis.LivenessChannel)
	s.tracker = liveness.New(sensors, publisher, liveness.Config{
		SweepInterval:            s.config.Liveness.SweepInterval,
		TimeoutMultiplier:        s.config.Liveness.TimeoutMultiplier,
		StaleGraceFactor:         s.config.Liveness.StaleGraceFactor,
		DefaultHeartbeatInterval: s.config.Liveness.DefaultHeartbeatInterval,
	})

	s.hubservice = hubservice.New(companies, groups, sensors, users, router, s.tracker)
	if err := s.hubservice.Validate(); err != nil {
		nuts.L.Fatalf("[Server] Invalid service wiring: %v", err)
	}

	return auth.NewService(users, auth.BcryptHasher{}, tokens)
}

// setupLivenessHandlers feeds liveness transitions into monitoring.
func (s *Server) setupLivenessHandlers() {
	s.tracker.OnTransition(func(change liveness.StateChange) {
		nuts.L.Infof("[Liveness] Sensor %d went %s -> %s", change.SensorID, change.From, change.To)
		s.monitoring.RecordEvent("liveness_transition", map[string]string{
			"sensor_id": strconv.FormatInt(change.SensorID, 10),
			"from":      string(change.From),
			"to":        string(change.To),
		})
	})
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to redis: %v", err)
	}
	return client
}

func initTimescaleDB(cfg config.PostgresConfig) database.DB {
	wrappedDB, err := database.NewTimescaleDB(cfg)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to telemetry database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrappedDB.GetDB().PingContext(ctx); err != nil {
		nuts.L.Fatalf("[Server] Failed to ping telemetry database: %v", err)
	}
	return wrappedDB
}

func initAppDB(cfg config.PostgresConfig) database.DB {
	wrappedDB, err := database.NewPostgresDB(cfg)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to app database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrappedDB.GetDB().PingContext(ctx); err != nil {
		nuts.L.Fatalf("[Server] Failed to ping app database: %v", err)
	}
	return wrappedDB
}
